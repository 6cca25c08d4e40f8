// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hook launches the monitor for one commit from a Subversion
// post-commit hook.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultLogFile receives the monitor output when no log file is given.
const DefaultLogFile = "svn_hook.log"

// Args returns the monitor arguments for one commit.
func Args(repo, rev, config string) []string {
	return []string{"hook", "--repository", repo, "--revision", rev, "--config", config}
}

// ExitError reports that the monitor ran and exited with a non-zero status.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("monitor exited with status %d", e.Code)
}

func (e *ExitError) ExitCode() int { return e.Code }

func (e *ExitError) Unwrap() error { return e.Err }

// Invoker runs the monitor program as a child process.
type Invoker struct {
	// Program is the monitor executable.
	Program string
	// Config is passed through as --config.
	Config string
	// LogFile collects the child's stdout and stderr. It is appended to.
	LogFile string
	// Env is added to the inherited environment.
	Env []string

	log *zap.SugaredLogger
}

func NewInvoker(program, config, logFile string, log *zap.SugaredLogger) *Invoker {
	if logFile == "" {
		logFile = DefaultLogFile
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Invoker{Program: program, Config: config, LogFile: logFile, log: log}
}

// Invoke runs the monitor for revision rev of repo and waits for it.
func (i *Invoker) Invoke(ctx context.Context, repo, rev string) error {
	if err := os.MkdirAll(filepath.Dir(i.LogFile), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	out, err := os.OpenFile(i.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening hook log: %w", err)
	}
	defer func() { _ = out.Close() }()

	args := Args(repo, rev, i.Config)
	i.log.Debugw("invoking monitor", "program", i.Program, "args", args, "log", i.LogFile)

	cmd := exec.CommandContext(ctx, i.Program, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(), i.Env...)

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			i.log.Warnw("monitor failed", "repository", repo, "revision", rev, "status", ee.ExitCode())
			return &ExitError{Code: ee.ExitCode(), Err: err}
		}
		return fmt.Errorf("running %s: %w", i.Program, err)
	}
	return nil
}

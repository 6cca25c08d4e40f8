// SPDX-License-Identifier: AGPL-3.0-or-later

package svn

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Executor runs an external program and returns its captured output.
type Executor interface {
	Execute(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecExecutor runs programs with os/exec.
type ExecExecutor struct{}

func (ExecExecutor) Execute(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// exitCode returns the process exit status carried by err, or -1 when the
// process never ran to completion.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

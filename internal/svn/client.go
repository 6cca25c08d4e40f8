// SPDX-License-Identifier: AGPL-3.0-or-later

// Package svn wraps the Subversion command line client.
package svn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	DefaultBinary    = "svn"
	DefaultPageSize  = 500
	DefaultPagePause = 500 * time.Millisecond

	trustFailures = "unknown-ca,cn-mismatch,expired,not-yet-valid,other"
	redacted      = "***"
)

type Options struct {
	Binary          string
	Username        string
	Password        string
	TrustServerCert bool
	// PageSize bounds the revision range of a single svn log call.
	PageSize int
	// PagePause separates consecutive svn log calls.
	PagePause time.Duration
	// Location is the zone log dates are converted to.
	Location *time.Location
}

type Client struct {
	exec  Executor
	opts  Options
	log   *zap.SugaredLogger
	clock clockwork.Clock
}

func New(exec Executor, opts Options, log *zap.SugaredLogger, clock clockwork.Clock) *Client {
	if exec == nil {
		exec = ExecExecutor{}
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PagePause < 0 {
		opts.PagePause = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{exec: exec, opts: opts, log: log, clock: clock}
}

// WithCredentials returns a copy of c that authenticates as username.
// A pair with either half empty sends no credentials.
func (c *Client) WithCredentials(username, password string) *Client {
	cp := *c
	cp.opts.Username = username
	cp.opts.Password = password
	return &cp
}

// CommandError reports a failed svn invocation. Args never hold credentials.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return fmt.Sprintf("svn %s (exit %d): %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Locked reports whether svn asked for a cleanup of a locked working copy.
func (e *CommandError) Locked() bool {
	return isLockMessage(e.Stderr)
}

func isLockMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "locked") || strings.Contains(s, "cleanup")
}

// Run executes svn with args in dir. When dir is a working copy and svn
// reports a lock, the working copy is cleaned up and the command retried once.
func (c *Client) Run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.run(ctx, dir, args...)
	if err == nil {
		return out, nil
	}
	var cerr *CommandError
	if !errors.As(err, &cerr) || !cerr.Locked() || !IsWorkingCopy(dir) {
		return "", err
	}

	c.log.Warnw("working copy locked, running cleanup", "dir", dir)
	if cleanErr := c.Cleanup(ctx, dir); cleanErr != nil {
		return "", fmt.Errorf("%w (cleanup failed: %v)", err, cleanErr)
	}
	return c.run(ctx, dir, args...)
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := c.buildArgs(args)
	c.log.Debugw("running svn", "dir", dir, "args", Redact(full))

	stdout, stderr, err := c.exec.Execute(ctx, dir, c.opts.Binary, full...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &CommandError{
			Args:     Redact(full),
			ExitCode: exitCode(err),
			Stderr:   Decode(stderr),
			Err:      err,
		}
	}
	return Decode(stdout), nil
}

// buildArgs appends credentials and the non-interactive and trust flags,
// never adding a flag the caller already passed.
func (c *Client) buildArgs(args []string) []string {
	full := append([]string(nil), args...)
	if c.opts.Username != "" && c.opts.Password != "" && !hasFlag(full, "--username") {
		full = append(full, "--username", c.opts.Username, "--password", c.opts.Password)
	}
	if !hasFlag(full, "--non-interactive") {
		full = append(full, "--non-interactive")
	}
	if c.opts.TrustServerCert && !hasFlag(full, "--trust-server-cert") {
		full = append(full, "--trust-server-cert", "--trust-server-cert-failures", trustFailures)
	}
	return full
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

// Redact returns a copy of args with --username and --password values masked.
func Redact(args []string) []string {
	out := make([]string, len(args))
	maskNext := false
	for i, a := range args {
		switch {
		case maskNext:
			out[i] = redacted
			maskNext = false
		case a == "--username" || a == "--password":
			out[i] = a
			maskNext = true
		case strings.HasPrefix(a, "--username=") || strings.HasPrefix(a, "--password="):
			out[i] = a[:strings.IndexByte(a, '=')+1] + redacted
		default:
			out[i] = a
		}
	}
	return out
}

// Decode returns svn output as a string. Output that is not valid UTF-8 is
// taken to be GBK, the console code page of Chinese Windows servers.
func Decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(decoded)
}

// LatestRevision returns the newest revision of target, a URL or a working
// copy path.
func (c *Client) LatestRevision(ctx context.Context, target string) (int, error) {
	dir := ""
	if IsWorkingCopy(target) {
		dir = target
	}
	out, err := c.Run(ctx, dir, "info", target, "--show-item", "revision")
	if err != nil {
		return 0, err
	}
	rev, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parsing revision of %s: %q", target, strings.TrimSpace(out))
	}
	return rev, nil
}

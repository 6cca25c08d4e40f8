// SPDX-License-Identifier: AGPL-3.0-or-later

package svn

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IsWorkingCopy reports whether dir holds an .svn administrative directory.
func IsWorkingCopy(dir string) bool {
	if dir == "" {
		return false
	}
	fi, err := os.Stat(filepath.Join(dir, ".svn"))
	return err == nil && fi.IsDir()
}

// Cleanup runs svn cleanup on wc. If svn still reports a lock, stale lock
// files under .svn are removed and cleanup is tried once more.
func (c *Client) Cleanup(ctx context.Context, wc string) error {
	if !IsWorkingCopy(wc) {
		return fmt.Errorf("%s is not a working copy", wc)
	}

	_, err := c.run(ctx, "", "cleanup", wc)
	if err == nil {
		return nil
	}
	var cerr *CommandError
	if !errors.As(err, &cerr) || !cerr.Locked() {
		return err
	}

	removed, rmErr := RemoveLockFiles(wc)
	if rmErr != nil {
		return fmt.Errorf("%w (removing lock files: %v)", err, rmErr)
	}
	c.log.Warnw("removed stale lock files", "dir", wc, "files", removed)

	_, err = c.run(ctx, "", "cleanup", wc)
	return err
}

// RemoveLockFiles deletes files under wc/.svn whose name contains "lock"
// and returns their paths relative to wc, sorted.
func RemoveLockFiles(wc string) ([]string, error) {
	admin := filepath.Join(wc, ".svn")
	var removed []string
	err := filepath.WalkDir(admin, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.Contains(strings.ToLower(d.Name()), "lock") {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		rel, _ := filepath.Rel(wc, path)
		removed = append(removed, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(removed)
	return removed, err
}

// EnsureWorkingCopy makes wc an up-to-date checkout of url. A directory at
// wc that is not a working copy is replaced.
func (c *Client) EnsureWorkingCopy(ctx context.Context, url, wc string) error {
	if err := os.MkdirAll(filepath.Dir(wc), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", wc, err)
	}

	if _, err := os.Stat(wc); err == nil && !IsWorkingCopy(wc) {
		c.log.Warnw("removing directory that is not a working copy", "dir", wc)
		if err := os.RemoveAll(wc); err != nil {
			return fmt.Errorf("removing %s: %w", wc, err)
		}
	}

	if !IsWorkingCopy(wc) {
		c.log.Infow("checking out working copy", "url", url, "dir", wc)
		if _, err := c.run(ctx, "", "checkout", url, wc); err != nil {
			return fmt.Errorf("checkout of %s: %w", url, err)
		}
		return nil
	}

	if err := c.Cleanup(ctx, wc); err != nil {
		c.log.Warnw("cleanup before update failed", "dir", wc, "error", err)
	}
	err := c.update(ctx, wc)
	if err == nil {
		return nil
	}
	c.log.Warnw("update failed, repairing working copy", "dir", wc, "error", err)

	status, err := c.Run(ctx, wc, "status", wc)
	if err != nil {
		return fmt.Errorf("status of %s: %w", wc, err)
	}
	if err := c.Cleanup(ctx, wc); err != nil {
		c.log.Warnw("cleanup during repair failed", "dir", wc, "error", err)
	}
	if hasMissing(status) {
		if _, err := c.Run(ctx, wc, "revert", "-R", wc); err != nil {
			return fmt.Errorf("revert of %s: %w", wc, err)
		}
	}
	if err := c.update(ctx, wc); err != nil {
		return fmt.Errorf("update of %s: %w", wc, err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, wc string) error {
	_, err := c.Run(ctx, wc, "update", "--accept", "theirs-full", wc)
	return err
}

// hasMissing reports whether svn status lists any missing ('!') item.
func hasMissing(status string) bool {
	for _, line := range strings.Split(status, "\n") {
		if strings.HasPrefix(line, "!") {
			return true
		}
	}
	return false
}

// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"fmt"

	"github.com/bartekus/svnmonitor/internal/config"
	"github.com/bartekus/svnmonitor/internal/runner"
	"github.com/bartekus/svnmonitor/internal/state"
	"github.com/bartekus/svnmonitor/internal/svn"
)

// RepositoryCheck looks for new revisions in one repository. It is one
// step of a watch cycle and keeps the fetched entries for the aggregated
// notification that follows the cycle.
type RepositoryCheck struct {
	m    *Monitor
	repo config.Repository
	last int

	latest   int
	entries  []svn.LogEntry
	advanced bool
}

func (c *RepositoryCheck) ID() string { return c.repo.ID }

// Pending reports whether the check found changes that still have to be
// delivered before the stored revision may move.
func (c *RepositoryCheck) Pending() bool {
	return !c.advanced && len(c.entries) > 0
}

func (c *RepositoryCheck) Run(ctx context.Context) runner.Result {
	c.latest, c.entries, c.advanced = 0, nil, false
	res := runner.Result{From: c.last, To: c.last}

	client := c.m.clientFor(c.repo)
	target, err := c.m.target(ctx, client, c.repo)
	if err != nil {
		return c.fail(res, err)
	}
	latest, err := client.LatestRevision(ctx, target)
	if err != nil {
		return c.fail(res, fmt.Errorf("latest revision: %w", err))
	}
	c.latest = latest
	res.To = latest

	if latest <= c.last {
		res.Status = runner.StatusPass
		if latest < c.last {
			res.Note = fmt.Sprintf("stored revision %d is ahead of the repository", c.last)
		}
		return res
	}

	c.m.audit.Record(OpChangeDetected, fmt.Sprintf("new changes detected: %d -> %d", c.last, latest), c.repo.ID)
	entries, err := client.Log(ctx, target, c.last, latest)
	if err != nil {
		return c.fail(res, fmt.Errorf("fetching changes: %w", err))
	}
	c.entries = entries
	res.Status = runner.StatusChanged
	res.Changes = len(entries)

	if !c.repo.Notify() || len(entries) == 0 {
		if err := c.m.revs.Advance(c.m.cfg.RepositoryIDs(), state.Revisions{c.repo.ID: latest}); err != nil {
			return c.fail(res, err)
		}
		c.advanced = true
		if !c.repo.Notify() {
			res.Note = "notifications disabled"
		}
	}
	return res
}

func (c *RepositoryCheck) fail(res runner.Result, err error) runner.Result {
	c.m.audit.Record(OpError, "checking repository failed", c.repo.ID, "error", err)
	res.Status = runner.StatusFail
	res.Note = err.Error()
	return res
}

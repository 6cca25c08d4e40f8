// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"time"
)

// Run is watch mode. It checks every repository right away, then again
// whenever the shortest configured interval has passed since the previous
// cycle started, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if len(m.cfg.Repositories) == 0 {
		return ErrNoRepositories
	}
	interval := m.cfg.MinCheckInterval()
	mode := "local"
	if m.cfg.System.UseRemoteCheck {
		mode = "remote"
	}
	m.log.Infow("starting svn monitor", "mode", mode, "repositories", len(m.cfg.Repositories), "interval", interval)
	m.audit.Record(OpInfo, "svn monitor started", "", "mode", mode)

	if !m.cfg.System.UseRemoteCheck {
		m.prepareWorkingCopies(ctx)
	}

	for {
		started := m.clock.Now()
		summary, err := m.CheckOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		wait := interval - m.clock.Since(started)
		if err != nil {
			m.log.Errorw("check cycle finished with errors", "error", err)
			m.audit.Record(OpError, "check cycle finished with errors", "", "error", err)
			wait = interval
		} else {
			m.log.Infow("check cycle finished", "cycle", summary.ID, "changes", len(summary.Changes))
		}

		if wait > 0 {
			m.log.Infow("waiting for next check", "wait", wait.Round(time.Second))
			select {
			case <-ctx.Done():
			case <-m.clock.After(wait):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	m.log.Infow("svn monitor stopped")
	m.audit.Record(OpInfo, "svn monitor stopped", "")
	return nil
}

// prepareWorkingCopies checks out or refreshes every working copy before
// the first cycle. Failures are logged and retried by the cycle itself.
func (m *Monitor) prepareWorkingCopies(ctx context.Context) {
	for _, repo := range m.cfg.Repositories {
		if ctx.Err() != nil {
			return
		}
		if err := m.clientFor(repo).EnsureWorkingCopy(ctx, repo.Target(), repo.WorkingCopy); err != nil {
			m.log.Warnw("preparing working copy failed", "repository", repo.ID, "dir", repo.WorkingCopy, "error", err)
		}
	}
}

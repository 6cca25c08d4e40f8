// SPDX-License-Identifier: AGPL-3.0-or-later

// Package monitor detects new revisions in the configured repositories and
// sends change notifications, either once per commit from a post-commit hook
// or periodically in watch mode.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bartekus/svnmonitor/internal/config"
	"github.com/bartekus/svnmonitor/internal/notify"
	"github.com/bartekus/svnmonitor/internal/runner"
	"github.com/bartekus/svnmonitor/internal/state"
	"github.com/bartekus/svnmonitor/internal/svn"
)

var (
	// ErrNoRepositories is returned when the configuration lists no repository.
	ErrNoRepositories = errors.New("no repositories configured")
	// ErrNotification marks a change notification that was not delivered.
	ErrNotification = errors.New("change notification failed")
	// ErrUnknownRepository is returned when a selection names a repository
	// that is not configured.
	ErrUnknownRepository = errors.New("unknown repository")
)

// Deps are the collaborators of a Monitor.
type Deps struct {
	Config    *config.Config
	SVN       *svn.Client
	Revisions *state.Store
	Runs      *runner.StateStore
	Notifier  notify.Notifier
	Log       *zap.SugaredLogger
	Clock     clockwork.Clock
}

type Monitor struct {
	cfg      *config.Config
	svn      *svn.Client
	revs     *state.Store
	runs     *runner.StateStore
	notifier notify.Notifier
	log      *zap.SugaredLogger
	clock    clockwork.Clock
	audit    *Audit
}

func New(d Deps) *Monitor {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		cfg:      d.Config,
		svn:      d.SVN,
		revs:     d.Revisions,
		runs:     d.Runs,
		notifier: d.Notifier,
		log:      d.Log,
		clock:    d.Clock,
		audit:    NewAudit(d.Log, d.Clock, d.Config.System.Location()),
	}
}

// ProcessCommit handles one post-commit event. Changes between the stored
// revision and revision are sent, and the stored revision only moves
// forward once they were delivered. A revision at or below the stored one
// is ignored.
func (m *Monitor) ProcessCommit(ctx context.Context, repoPath string, revision int) error {
	repo, err := m.matchRepository(repoPath)
	if err != nil {
		return err
	}
	m.audit.Record(OpCommitProcessed, fmt.Sprintf("processing commit r%d", revision), repo.ID, "path", repoPath)

	revs, err := m.revs.Load([]string{repo.ID})
	if err != nil {
		return fmt.Errorf("loading revisions: %w", err)
	}
	last := revs[repo.ID]
	if revision <= last {
		m.log.Infow("revision already processed", "repository", repo.ID, "revision", revision, "last", last)
		return nil
	}

	client := m.clientFor(repo)
	target, err := m.target(ctx, client, repo)
	if err != nil {
		m.audit.Record(OpError, "preparing repository failed", repo.ID, "error", err)
		return err
	}
	entries, err := client.Log(ctx, target, last, revision)
	if err != nil {
		m.audit.Record(OpError, "fetching changes failed", repo.ID, "error", err)
		return fmt.Errorf("fetching changes of %s: %w", repo.ID, err)
	}

	if repo.Notify() && len(entries) > 0 {
		if err := m.notifier.Notify(ctx, changesOf(repo, entries)); err != nil {
			m.audit.Record(OpError, "notification failed, revision not recorded", repo.ID, "revision", revision, "error", err)
			return fmt.Errorf("%w for %s: %w", ErrNotification, repo.ID, err)
		}
		m.audit.Record(OpNotification, fmt.Sprintf("sent %d changes", len(entries)), repo.ID)
	}

	if err := m.revs.Advance(m.cfg.RepositoryIDs(), state.Revisions{repo.ID: revision}); err != nil {
		return err
	}
	m.audit.Record(OpSuccess, fmt.Sprintf("recorded revision %d", revision), repo.ID, "previous", last)
	return nil
}

// matchRepository finds the repository a hook path belongs to. A configured
// path matches when either path contains the other. Without a match the
// first repository is used.
func (m *Monitor) matchRepository(p string) (config.Repository, error) {
	repos := m.cfg.Repositories
	if len(repos) == 0 {
		return config.Repository{}, ErrNoRepositories
	}
	arg := normalizePath(p)
	if arg != "" {
		for _, r := range repos {
			for _, candidate := range []string{r.Path, r.URL} {
				c := normalizePath(candidate)
				if c != "" && (strings.Contains(c, arg) || strings.Contains(arg, c)) {
					return r, nil
				}
			}
		}
	}
	m.log.Warnw("no repository matches path, using the first one", "path", p, "repository", repos[0].ID)
	m.audit.Record(OpWarning, "no repository matches path "+p, repos[0].ID)
	return repos[0], nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "file://")
	p = filepath.ToSlash(p)
	return strings.TrimRight(p, "/")
}

func (m *Monitor) clientFor(repo config.Repository) *svn.Client {
	return m.svn.WithCredentials(m.cfg.Credentials(repo))
}

// target returns what svn commands for repo address: the repository URL in
// remote mode, or the refreshed working copy otherwise.
func (m *Monitor) target(ctx context.Context, client *svn.Client, repo config.Repository) (string, error) {
	if m.cfg.System.UseRemoteCheck {
		return repo.Target(), nil
	}
	if err := client.EnsureWorkingCopy(ctx, repo.Target(), repo.WorkingCopy); err != nil {
		return "", fmt.Errorf("preparing working copy of %s: %w", repo.ID, err)
	}
	return repo.WorkingCopy, nil
}

func changesOf(repo config.Repository, entries []svn.LogEntry) []notify.Change {
	out := make([]notify.Change, len(entries))
	for i, e := range entries {
		out[i] = notify.Change{Repository: repo, LogEntry: e}
	}
	return out
}

// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bartekus/svnmonitor/internal/notify"
	"github.com/bartekus/svnmonitor/internal/runner"
	"github.com/bartekus/svnmonitor/internal/state"
)

// Selection narrows a cycle to some repositories. The zero value checks
// every repository.
type Selection struct {
	// Failed re-runs only the repositories that failed in the last cycle.
	Failed bool
	// IDs lists repositories by ID, REPO_ key or name.
	IDs []string
}

// CycleSummary describes one finished cycle.
type CycleSummary struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Results  []runner.Result
	Changes  []notify.Change
	// Notified is set when the aggregated notification was delivered.
	Notified bool
	// Advanced lists repositories whose stored revision moved after delivery.
	Advanced []string
}

// Failed returns the IDs of the repositories whose check failed.
func (s *CycleSummary) Failed() []string {
	var out []string
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r.Repository)
		}
	}
	return out
}

// CheckOnce runs one watch cycle over every repository.
func (m *Monitor) CheckOnce(ctx context.Context) (*CycleSummary, error) {
	return m.Cycle(ctx, Selection{})
}

// Cycle checks the selected repositories one after another, then sends one
// notification covering every repository with new changes. Stored revisions
// of those repositories advance only when that notification was delivered.
// Failed checks are reported through a *runner.RunError next to the summary.
func (m *Monitor) Cycle(ctx context.Context, sel Selection) (*CycleSummary, error) {
	if len(m.cfg.Repositories) == 0 {
		return nil, ErrNoRepositories
	}
	ids, err := m.canonicalIDs(sel.IDs)
	if err != nil {
		return nil, err
	}
	summary := &CycleSummary{Started: m.clock.Now()}

	revs, err := m.revs.Load(m.cfg.RepositoryIDs())
	if err != nil {
		return nil, fmt.Errorf("loading revisions: %w", err)
	}

	checks := make([]runner.Check, 0, len(m.cfg.Repositories))
	byID := make(map[string]*RepositoryCheck, len(m.cfg.Repositories))
	for _, repo := range m.cfg.Repositories {
		c := &RepositoryCheck{m: m, repo: repo, last: revs[repo.ID]}
		checks = append(checks, c)
		byID[repo.ID] = c
	}

	r := runner.NewRunner(checks, m.runs, m.log, m.clock)
	var runErr error
	switch {
	case sel.Failed:
		summary.Results, runErr = r.Resume(ctx)
	case len(sel.IDs) > 0:
		summary.Results, runErr = r.RunList(ctx, ids)
	default:
		summary.Results, runErr = r.RunAll(ctx)
	}
	var failed *runner.RunError
	if runErr != nil && !errors.As(runErr, &failed) {
		return nil, runErr
	}
	if len(summary.Results) > 0 {
		if last, err := m.runs.ReadLastCycle(); err == nil && last != nil {
			summary.ID = last.ID
		}
	}

	var pending []*RepositoryCheck
	for _, res := range summary.Results {
		if c := byID[res.Repository]; c != nil && c.Pending() {
			pending = append(pending, c)
			summary.Changes = append(summary.Changes, changesOf(c.repo, c.entries)...)
		}
	}

	var notifyErr error
	if len(pending) > 0 {
		notifyErr = m.deliver(ctx, summary, pending)
	}
	m.report(ctx, summary)

	summary.Finished = m.clock.Now()
	return summary, errors.Join(notifyErr, runErr)
}

// canonicalIDs maps REPO_ keys and names onto repository IDs.
func (m *Monitor) canonicalIDs(ids []string) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		repo, ok := m.cfg.Repository(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRepository, id)
		}
		out[i] = repo.ID
	}
	return out, nil
}

func (m *Monitor) deliver(ctx context.Context, summary *CycleSummary, pending []*RepositoryCheck) error {
	if err := m.notifier.Notify(ctx, summary.Changes); err != nil {
		m.audit.Record(OpError, "notification failed, keeping stored revisions", "", "error", err)
		m.markUndelivered(summary, pending, err)
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	summary.Notified = true
	m.audit.Record(OpNotification, fmt.Sprintf("sent %d changes from %d repositories", len(summary.Changes), len(pending)), "")

	next := make(state.Revisions, len(pending))
	for _, c := range pending {
		next[c.repo.ID] = c.latest
	}
	if err := m.revs.Advance(m.cfg.RepositoryIDs(), next); err != nil {
		return err
	}
	for _, c := range pending {
		summary.Advanced = append(summary.Advanced, c.repo.ID)
		m.audit.Record(OpSuccess, fmt.Sprintf("recorded revision %d", c.latest), c.repo.ID, "previous", c.last)
	}
	return nil
}

// markUndelivered turns the results of pending repositories into failures,
// so a later "check --failed" picks them up again.
func (m *Monitor) markUndelivered(summary *CycleSummary, pending []*RepositoryCheck, cause error) {
	note := "notification failed: " + cause.Error()
	undelivered := map[string]bool{}
	for _, c := range pending {
		undelivered[c.repo.ID] = true
	}

	for i := range summary.Results {
		res := &summary.Results[i]
		if !undelivered[res.Repository] {
			continue
		}
		res.Status = runner.StatusFail
		res.Note = note
		if err := m.runs.WriteResult(*res); err != nil {
			m.log.Warnw("recording undelivered result failed", "repository", res.Repository, "error", err)
		}
	}

	last, err := m.runs.ReadLastCycle()
	if err != nil || last == nil {
		return
	}
	for _, c := range pending {
		last.Failed = append(last.Failed, c.repo.ID)
	}
	last.Status = "fail"
	if err := m.runs.WriteLastCycle(*last); err != nil {
		m.log.Warnw("recording undelivered cycle failed", "error", err)
	}
}

// report sends the status email when enabled. Its failure never fails the
// cycle.
func (m *Monitor) report(ctx context.Context, summary *CycleSummary) {
	if !m.cfg.System.StatusReport {
		return
	}
	rep := notify.StatusReport{
		CycleID:           summary.ID,
		CheckedAt:         summary.Started,
		TotalRepositories: len(m.cfg.Repositories),
	}
	for _, res := range summary.Results {
		rs := notify.RepoStatus{ID: res.Repository, Revision: res.To, Changes: res.Changes}
		if repo, ok := m.cfg.Repository(res.Repository); ok {
			rs.Name = repo.DisplayName()
		}
		switch res.Status {
		case runner.StatusFail:
			rs.Status = notify.RepoFailed
			rs.Error = res.Note
		case runner.StatusChanged:
			rs.Status = notify.RepoChanged
		default:
			rs.Status = notify.RepoOK
		}
		rep.Repositories = append(rep.Repositories, rs)
	}

	if err := m.notifier.Report(ctx, rep); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			m.log.Debugw("status report skipped, mail is not configured", "error", err)
			return
		}
		m.log.Errorw("sending status report failed", "error", err)
		return
	}
	m.audit.Record(OpNotification, "status report sent", "", "cycle", summary.ID)
}

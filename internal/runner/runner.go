// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner executes a cycle of checks in order and records the
// outcome of each one, so a later run can resume only the failures.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Runner manages the execution of checks.
type Runner struct {
	checks []Check
	store  *StateStore
	log    *zap.SugaredLogger
	clock  clockwork.Clock
}

// NewRunner creates a new runner with the given checks.
func NewRunner(checks []Check, store *StateStore, log *zap.SugaredLogger, clock clockwork.Clock) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		checks: checks,
		store:  store,
		log:    log,
		clock:  clock,
	}
}

// RunError names the checks that failed in a cycle.
type RunError struct {
	Failed []string
}

func (e *RunError) Error() string {
	return "checks failed: " + strings.Join(e.Failed, ", ")
}

// RunAll executes all checks in order.
// It continues after a failed check and returns a *RunError naming every
// failure along with all results.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	return r.executeSequence(ctx, r.checks)
}

// Resume re-runs only the checks that failed in the last cycle. With no
// recorded failures it does nothing.
func (r *Runner) Resume(ctx context.Context) ([]Result, error) {
	failed, err := r.store.LoadFailed()
	if err != nil {
		return nil, fmt.Errorf("loading failed checks: %w", err)
	}
	if len(failed) == 0 {
		return nil, nil
	}

	var toRun []Check
	for _, id := range failed {
		if c := r.findCheck(id); c != nil {
			toRun = append(toRun, c)
		} else {
			r.log.Warnw("failed check is no longer configured", "check", id)
		}
	}
	return r.executeSequence(ctx, toRun)
}

// RunList executes a specific list of check IDs.
func (r *Runner) RunList(ctx context.Context, ids []string) ([]Result, error) {
	var toRun []Check
	for _, id := range ids {
		c := r.findCheck(id)
		if c == nil {
			return nil, fmt.Errorf("check not found: %s", id)
		}
		toRun = append(toRun, c)
	}
	return r.executeSequence(ctx, toRun)
}

func (r *Runner) findCheck(id string) Check {
	for _, c := range r.checks {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// executeSequence runs checks one after another, recording each result and
// the cycle summary. Once ctx is done the remaining checks are recorded as
// skipped and ctx's error is returned.
func (r *Runner) executeSequence(ctx context.Context, checks []Check) ([]Result, error) {
	cycle := LastCycle{
		ID:      uuid.NewString(),
		Started: r.clock.Now(),
		Status:  "pass",
	}
	results := make([]Result, 0, len(checks))

	for _, c := range checks {
		id := c.ID()
		cycle.Repositories = append(cycle.Repositories, id)

		start := r.clock.Now()
		var res Result
		if err := ctx.Err(); err != nil {
			res = Result{Status: StatusSkip, Note: "cycle cancelled"}
		} else {
			res = c.Run(ctx)
		}
		res.Repository = id
		res.Finished = r.clock.Now()
		res.Duration = res.Finished.Sub(start)
		results = append(results, res)

		if err := r.store.WriteResult(res); err != nil {
			return results, fmt.Errorf("writing result for %s: %w", id, err)
		}

		switch res.Status {
		case StatusFail:
			cycle.Failed = append(cycle.Failed, id)
			cycle.Status = "fail"
			r.log.Errorw("check failed", "repository", id, "note", res.Note)
		case StatusChanged:
			cycle.Changed = append(cycle.Changed, id)
			r.log.Infow("check found changes", "repository", id, "from", res.From, "to", res.To, "changes", res.Changes)
		case StatusSkip:
			r.log.Infow("check skipped", "repository", id, "note", res.Note)
		default:
			r.log.Debugw("check passed", "repository", id, "revision", res.To)
		}
	}

	cycle.Finished = r.clock.Now()
	if err := r.store.WriteLastCycle(cycle); err != nil {
		return results, fmt.Errorf("writing last cycle: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}
	if len(cycle.Failed) > 0 {
		return results, &RunError{Failed: cycle.Failed}
	}
	return results, nil
}

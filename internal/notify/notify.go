// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify renders change and status emails and delivers them.
package notify

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bartekus/svnmonitor/internal/config"
	"github.com/bartekus/svnmonitor/internal/svn"
)

var (
	// ErrNotConfigured means the SMTP server, sender or credentials are missing.
	ErrNotConfigured = errors.New("email is not configured")
	// ErrNoRecipients means no recipient could be resolved for a message.
	ErrNoRecipients = errors.New("no recipients")
)

// Change is one revision of one repository.
type Change struct {
	Repository config.Repository
	svn.LogEntry
}

// Notifier delivers change notifications and status reports.
type Notifier interface {
	Notify(ctx context.Context, batch []Change) error
	Report(ctx context.Context, report StatusReport) error
}

// Repository states used in a StatusReport.
const (
	RepoOK      = "ok"
	RepoChanged = "changed"
	RepoFailed  = "failed"
)

// StatusReport describes one watch cycle for the status email.
type StatusReport struct {
	CycleID           string
	CheckedAt         time.Time
	TotalRepositories int
	Repositories      []RepoStatus
}

type RepoStatus struct {
	ID       string
	Name     string
	Status   string
	Revision int
	Changes  int
	Error    string
}

// Changed returns how many repositories reported changes.
func (r StatusReport) Changed() int {
	n := 0
	for _, s := range r.Repositories {
		if s.Status == RepoChanged {
			n++
		}
	}
	return n
}

// TotalChanges returns the number of revisions found across repositories.
func (r StatusReport) TotalChanges() int {
	n := 0
	for _, s := range r.Repositories {
		n += s.Changes
	}
	return n
}

// Errors returns the repositories whose check failed.
func (r StatusReport) Errors() []RepoStatus {
	var out []RepoStatus
	for _, s := range r.Repositories {
		if s.Error != "" {
			out = append(out, s)
		}
	}
	return out
}

// Resolver picks the recipients of a repository's notifications.
type Resolver struct {
	cfg *config.Config
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// For returns the recipients for repoID, trying in order: the repository's
// own list, a repository reached through an alias (its name, the REPO_
// prefixed or stripped ID, or a configured alias), the union of every
// repository's recipients, and finally email.to_emails.
func (r *Resolver) For(repoID string) []string {
	if repo, ok := r.cfg.Repository(repoID); ok && len(repo.Recipients) > 0 {
		return normalize(repo.Recipients)
	}

	stripped := strings.TrimPrefix(repoID, config.RepoPrefix)
	for _, repo := range r.cfg.Repositories {
		if len(repo.Recipients) == 0 {
			continue
		}
		if strings.EqualFold(repo.Name, repoID) || repo.ID == stripped ||
			containsFold(repo.Aliases, repoID) || containsFold(repo.Aliases, stripped) {
			return normalize(repo.Recipients)
		}
	}

	if all := r.cfg.AllRecipients(); len(all) > 0 {
		return all
	}
	return normalize(r.cfg.Email.To)
}

// ForBatch returns the union of recipients over every repository in batch.
func (r *Resolver) ForBatch(batch []Change) []string {
	done := map[string]bool{}
	var all []string
	for _, c := range batch {
		if done[c.Repository.ID] {
			continue
		}
		done[c.Repository.ID] = true
		all = append(all, r.For(c.Repository.ID)...)
	}
	return normalize(all)
}

// StatusRecipients returns email.status_recipients, or email.to_emails.
func (r *Resolver) StatusRecipients() []string {
	if len(r.cfg.Email.StatusRecipients) > 0 {
		return normalize(r.cfg.Email.StatusRecipients)
	}
	return normalize(r.cfg.Email.To)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func normalize(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

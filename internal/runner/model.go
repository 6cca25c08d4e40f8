// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import "time"

// Status is the outcome of one repository check.
type Status string

const (
	StatusPass    Status = "pass"
	StatusChanged Status = "changed"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
)

// Result is the outcome of a single check, stored as checks/<id>.json.
type Result struct {
	Repository string        `json:"repository"`
	Status     Status        `json:"status"`
	From       int           `json:"from"`
	To         int           `json:"to"`
	Changes    int           `json:"changes"`
	Note       string        `json:"note,omitempty"`
	Finished   time.Time     `json:"finished"`
	Duration   time.Duration `json:"duration_ns"`
}

// Failed reports whether the check did not complete.
func (r Result) Failed() bool { return r.Status == StatusFail }

// LastCycle summarizes the most recent cycle, stored as last-cycle.json.
type LastCycle struct {
	ID           string    `json:"id"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
	Status       string    `json:"status"` // "pass" or "fail"
	Repositories []string  `json:"repositories"`
	Failed       []string  `json:"failed"`
	Changed      []string  `json:"changed"`
}

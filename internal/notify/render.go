// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bartekus/svnmonitor/internal/projection"
	"github.com/bartekus/svnmonitor/internal/svn"
)

const dateLayout = "2006-01-02 15:04:05"

// Message is a rendered email without its envelope.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// ChangeType summarizes the actions of one revision for display.
type ChangeType struct {
	Label string
	Color string
}

// Classify derives the display type of a revision from its path actions.
// Any deletion wins, then a mix of actions, then the single action.
func Classify(e svn.LogEntry) ChangeType {
	if len(e.Paths) == 0 {
		return ChangeType{"None", "grey"}
	}
	actions := e.Actions()
	for _, a := range actions {
		if a == "D" {
			return ChangeType{"Deleted", "red"}
		}
	}
	if len(actions) > 1 {
		return ChangeType{"Mixed", "orange"}
	}
	switch actions[0] {
	case "M":
		return ChangeType{"Modified", "blue"}
	case "A":
		return ChangeType{"Added", "green"}
	}
	return ChangeType{"Other", "black"}
}

// ActionLabel spells out a single-letter svn path action.
func ActionLabel(action string) string {
	switch action {
	case "A":
		return "Added"
	case "M":
		return "Modified"
	case "D":
		return "Deleted"
	case "R":
		return "Replaced"
	}
	return action
}

type fileView struct {
	Action string
	Path   string
}

type changeView struct {
	Revision int
	Author   string
	Date     string
	Message  string
	Type     ChangeType
	Files    []fileView
}

type repoView struct {
	Heading string
	Changes []changeView
}

// group splits batch by repository, keeping first-seen order.
func group(batch []Change) ([]string, map[string][]Change) {
	var order []string
	by := map[string][]Change{}
	for _, c := range batch {
		id := c.Repository.ID
		if _, ok := by[id]; !ok {
			order = append(order, id)
		}
		by[id] = append(by[id], c)
	}
	return order, by
}

func repoLabel(c Change) string {
	return fmt.Sprintf("%s (%s)", c.Repository.ID, c.Repository.DisplayName())
}

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "N/A"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(dateLayout)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// RenderChanges builds the notification for a batch of changes, one table
// per repository.
func RenderChanges(batch []Change, loc *time.Location) (Message, error) {
	order, by := group(batch)
	if len(order) == 0 {
		return Message{}, fmt.Errorf("no changes to render")
	}

	var subject string
	if len(order) == 1 {
		subject = fmt.Sprintf("SVN change notification - %s (%d changes)", repoLabel(by[order[0]][0]), len(batch))
	} else {
		labels := make([]string, len(order))
		for i, id := range order {
			labels[i] = repoLabel(by[id][0])
		}
		subject = fmt.Sprintf("SVN change notification - %d changes in %d repositories (%s)",
			len(batch), len(order), strings.Join(labels, ", "))
	}

	var repos []repoView
	var text strings.Builder
	text.WriteString("SVN repository changes detected\n")
	for _, id := range order {
		changes := by[id]
		heading := repoLabel(changes[0])
		if url := changes[0].Repository.URL; url != "" {
			heading += " (URL: " + url + ")"
		}

		rv := repoView{Heading: heading}
		var rows [][]string
		for _, c := range changes {
			cv := changeView{
				Revision: c.Revision,
				Author:   orUnknown(c.Author),
				Date:     formatDate(c.Date, loc),
				Message:  c.Message,
				Type:     Classify(c.LogEntry),
			}
			for _, p := range c.Paths {
				cv.Files = append(cv.Files, fileView{Action: ActionLabel(p.Action), Path: p.Path})
			}
			rv.Changes = append(rv.Changes, cv)
			rows = append(rows, []string{
				"r" + strconv.Itoa(cv.Revision), cv.Author, cv.Date, cv.Type.Label, firstLine(cv.Message),
			})
		}
		repos = append(repos, rv)

		fmt.Fprintf(&text, "\n%s\n\n", heading)
		text.WriteString(projection.RenderTable([]string{"Revision", "Author", "Date", "Type", "Message"}, rows))
		for _, cv := range rv.Changes {
			if len(cv.Files) == 0 {
				continue
			}
			fmt.Fprintf(&text, "\nr%d:\n", cv.Revision)
			for _, f := range cv.Files {
				fmt.Fprintf(&text, "  %s: %s\n", f.Action, f.Path)
			}
		}
	}

	var html bytes.Buffer
	if err := changesTemplate.Execute(&html, repos); err != nil {
		return Message{}, fmt.Errorf("rendering change email: %w", err)
	}
	return Message{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

type statusView struct {
	CheckedAt    string
	CycleID      string
	Total        int
	Checked      int
	Changed      int
	TotalChanges int
	Repositories []statusRowView
	Errors       []RepoStatus
}

type statusRowView struct {
	RepoStatus
	Label string
	Color string
}

func statusStyle(status string) (string, string) {
	switch status {
	case RepoChanged:
		return "Changed", "orange"
	case RepoFailed:
		return "Failed", "red"
	}
	return "OK", "green"
}

// RenderStatus builds the status report email for one cycle.
func RenderStatus(report StatusReport, loc *time.Location) (Message, error) {
	checked := formatDate(report.CheckedAt, loc)
	view := statusView{
		CheckedAt:    checked,
		CycleID:      report.CycleID,
		Total:        report.TotalRepositories,
		Checked:      len(report.Repositories),
		Changed:      report.Changed(),
		TotalChanges: report.TotalChanges(),
		Errors:       report.Errors(),
	}

	rows := make([][]string, 0, len(report.Repositories))
	for _, r := range report.Repositories {
		label, color := statusStyle(r.Status)
		view.Repositories = append(view.Repositories, statusRowView{RepoStatus: r, Label: label, Color: color})
		rows = append(rows, []string{r.ID, r.Name, label, strconv.Itoa(r.Revision), strconv.Itoa(r.Changes)})
	}

	var text strings.Builder
	fmt.Fprintf(&text, "SVN monitor status report\nChecked at: %s\n\n", checked)
	text.WriteString(projection.RenderTable([]string{"Summary", "Value"}, [][]string{
		{"Repositories monitored", strconv.Itoa(view.Total)},
		{"Repositories checked", strconv.Itoa(view.Checked)},
		{"Repositories with changes", strconv.Itoa(view.Changed)},
		{"Changes detected", strconv.Itoa(view.TotalChanges)},
	}))
	text.WriteString("\n")
	text.WriteString(projection.RenderTable([]string{"ID", "Name", "Status", "Revision", "Changes"}, rows))
	if len(view.Errors) > 0 {
		text.WriteString("\nErrors:\n")
		for _, e := range view.Errors {
			fmt.Fprintf(&text, "  %s: %s\n", e.ID, e.Error)
		}
	}

	var html bytes.Buffer
	if err := statusTemplate.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("rendering status email: %w", err)
	}
	return Message{
		Subject: "SVN monitor status report - " + checked,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

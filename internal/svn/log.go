// SPDX-License-Identifier: AGPL-3.0-or-later

package svn

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ChangedPath is one path touched by a revision.
type ChangedPath struct {
	Action           string `json:"action"`
	Path             string `json:"path"`
	Kind             string `json:"kind,omitempty"`
	CopyFromPath     string `json:"copyfrom_path,omitempty"`
	CopyFromRevision int    `json:"copyfrom_revision,omitempty"`
}

// LogEntry is one revision from svn log.
type LogEntry struct {
	Revision int           `json:"revision"`
	Author   string        `json:"author"`
	Date     time.Time     `json:"date"`
	Message  string        `json:"message"`
	Paths    []ChangedPath `json:"paths"`
}

// Actions returns the distinct actions of the entry's paths, sorted.
func (e LogEntry) Actions() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range e.Paths {
		if !seen[p.Action] {
			seen[p.Action] = true
			out = append(out, p.Action)
		}
	}
	sort.Strings(out)
	return out
}

type xmlLog struct {
	Entries []xmlEntry `xml:"logentry"`
}

type xmlEntry struct {
	Revision int       `xml:"revision,attr"`
	Author   string    `xml:"author"`
	Date     string    `xml:"date"`
	Msg      string    `xml:"msg"`
	Paths    []xmlPath `xml:"paths>path"`
}

type xmlPath struct {
	Action       string `xml:"action,attr"`
	Kind         string `xml:"kind,attr"`
	CopyFromPath string `xml:"copyfrom-path,attr"`
	CopyFromRev  string `xml:"copyfrom-rev,attr"`
	Path         string `xml:",chardata"`
}

// ParseLog parses the output of svn log --xml --verbose. Anything before
// the first '<' is ignored, since svn may print warnings ahead of the XML.
func ParseLog(data []byte, loc *time.Location) ([]LogEntry, error) {
	i := bytes.IndexByte(data, '<')
	if i < 0 {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("svn log output contains no XML")
	}
	if loc == nil {
		loc = time.Local
	}

	var doc xmlLog
	if err := xml.Unmarshal(data[i:], &doc); err != nil {
		return nil, fmt.Errorf("parsing svn log XML: %w", err)
	}

	entries := make([]LogEntry, 0, len(doc.Entries))
	for _, xe := range doc.Entries {
		e := LogEntry{
			Revision: xe.Revision,
			Author:   strings.TrimSpace(xe.Author),
			Message:  strings.TrimSpace(xe.Msg),
		}
		if d := strings.TrimSpace(xe.Date); d != "" {
			if t, err := time.Parse(time.RFC3339Nano, d); err == nil {
				e.Date = t.In(loc)
			}
		}
		for _, xp := range xe.Paths {
			p := strings.TrimSpace(xp.Path)
			if p == "" {
				continue
			}
			action := strings.TrimSpace(xp.Action)
			if action == "" {
				action = "M"
			}
			cp := ChangedPath{Action: action, Path: p, Kind: xp.Kind, CopyFromPath: xp.CopyFromPath}
			if xp.CopyFromRev != "" {
				cp.CopyFromRevision, _ = strconv.Atoi(xp.CopyFromRev)
			}
			e.Paths = append(e.Paths, cp)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Log returns the log entries of target for revisions in (from, to], in
// ascending order. Large ranges are fetched in pages of PageSize revisions.
// A page that comes back empty is refetched one revision at a time.
func (c *Client) Log(ctx context.Context, target string, from, to int) ([]LogEntry, error) {
	start := from + 1
	if start < 1 {
		start = 1
	}
	if start > to {
		return nil, nil
	}
	dir := ""
	if IsWorkingCopy(target) {
		dir = target
	}

	byRev := map[int]LogEntry{}
	for lo := start; lo <= to; lo += c.opts.PageSize {
		if lo > start && c.opts.PagePause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(c.opts.PagePause):
			}
		}
		hi := lo + c.opts.PageSize - 1
		if hi > to {
			hi = to
		}

		entries, err := c.logRange(ctx, dir, target, lo, hi)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			c.log.Warnw("empty svn log page, fetching revisions one by one", "target", target, "from", lo, "to", hi)
			entries = c.logEach(ctx, dir, target, lo, hi)
		}
		for _, e := range entries {
			byRev[e.Revision] = e
		}
	}

	out := make([]LogEntry, 0, len(byRev))
	for _, e := range byRev {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (c *Client) logRange(ctx context.Context, dir, target string, lo, hi int) ([]LogEntry, error) {
	out, err := c.Run(ctx, dir, "log", target, "--xml", "--verbose", "-r", fmt.Sprintf("%d:%d", lo, hi))
	if err != nil {
		return nil, err
	}
	return ParseLog([]byte(out), c.opts.Location)
}

// logEach fetches revisions lo..hi individually. Failures are logged and
// skipped so one unreadable revision does not hide the others.
func (c *Client) logEach(ctx context.Context, dir, target string, lo, hi int) []LogEntry {
	var entries []LogEntry
	for rev := lo; rev <= hi; rev++ {
		if ctx.Err() != nil {
			return entries
		}
		out, err := c.Run(ctx, dir, "log", target, "--xml", "--verbose", "-r", strconv.Itoa(rev))
		if err != nil {
			c.log.Warnw("fetching single revision failed", "target", target, "revision", rev, "error", err)
			continue
		}
		parsed, err := ParseLog([]byte(out), c.opts.Location)
		if err != nil {
			c.log.Warnw("parsing single revision failed", "target", target, "revision", rev, "error", err)
			continue
		}
		entries = append(entries, parsed...)
	}
	return entries
}

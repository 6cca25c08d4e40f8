package svn

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleLog = `svn: warning: W200007: something harmless
<?xml version="1.0" encoding="UTF-8"?>
<log>
<logentry revision="12">
<author>alice</author>
<date>2024-03-01T02:03:04.123456Z</date>
<paths>
<path action="A" kind="file" prop-mods="false" text-mods="true">/trunk/new.go</path>
<path action="M" kind="file">/trunk/main.go</path>
<path kind="file">/trunk/implicit.go</path>
<path action="D" kind="dir">  </path>
<path action="A" kind="dir" copyfrom-path="/trunk" copyfrom-rev="11">/branches/rel</path>
</paths>
<msg>
  Add feature
</msg>
</logentry>
<logentry revision="13">
<paths>
<path action="D" kind="file">/trunk/old.go</path>
</paths>
<msg></msg>
</logentry>
</log>
`

func TestParseLog(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	entries, err := ParseLog([]byte(sampleLog), loc)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, 12, first.Revision)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "Add feature", first.Message)
	assert.Equal(t, "2024-03-01 10:03:04", first.Date.Format("2006-01-02 15:04:05"))
	assert.Equal(t, loc, first.Date.Location())
	require.Len(t, first.Paths, 4)
	assert.Equal(t, ChangedPath{Action: "A", Path: "/trunk/new.go", Kind: "file"}, first.Paths[0])
	assert.Equal(t, "M", first.Paths[2].Action)
	assert.Equal(t, ChangedPath{Action: "A", Path: "/branches/rel", Kind: "dir", CopyFromPath: "/trunk", CopyFromRevision: 11}, first.Paths[3])
	assert.Equal(t, []string{"A", "M"}, first.Actions())

	second := entries[1]
	assert.Equal(t, 13, second.Revision)
	assert.Empty(t, second.Author)
	assert.True(t, second.Date.IsZero())
	assert.Equal(t, []string{"D"}, second.Actions())
}

func TestParseLog_EmptyAndBroken(t *testing.T) {
	entries, err := ParseLog([]byte("  \n"), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = ParseLog([]byte(`<?xml version="1.0"?><log></log>`), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = ParseLog([]byte("svn: E160013: path not found"), time.UTC)
	assert.Error(t, err)

	_, err = ParseLog([]byte("<log><logentry revision="), time.UTC)
	assert.Error(t, err)
}

// logXML renders a minimal svn log document for the given revisions.
func logXML(revs ...int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><log>`)
	for _, r := range revs {
		fmt.Fprintf(&b, `<logentry revision="%d"><author>u%d</author><date>2024-01-01T00:00:00Z</date><paths><path action="M">/f%d</path></paths><msg>m%d</msg></logentry>`, r, r, r, r)
	}
	b.WriteString(`</log>`)
	return b.String()
}

// rangeLog answers "log -r a:b" with every revision in a..b.
func rangeLog(_ string, args []string) (string, string, error) {
	for i, a := range args {
		if a != "-r" {
			continue
		}
		var lo, hi int
		if n, _ := fmt.Sscanf(args[i+1], "%d:%d", &lo, &hi); n == 2 {
			var revs []int
			for r := lo; r <= hi; r++ {
				revs = append(revs, r)
			}
			return logXML(revs...), "", nil
		}
		fmt.Sscanf(args[i+1], "%d", &lo)
		return logXML(lo), "", nil
	}
	return "", "no range", exitStatus(1)
}

func revisionArgs(fe *fakeExec) []string {
	var out []string
	for _, c := range fe.calls {
		for i, a := range c.args {
			if a == "-r" {
				out = append(out, c.args[i+1])
			}
		}
	}
	return out
}

func revisions(entries []LogEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Revision
	}
	return out
}

func TestLog_Paginates(t *testing.T) {
	fe := &fakeExec{handle: rangeLog}
	c := newTestClient(t, fe, Options{PageSize: 2})

	entries, err := c.Log(context.Background(), "svn://h/r", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, revisions(entries))
	assert.Equal(t, []string{"1:2", "3:4", "5:5"}, revisionArgs(fe))
	assert.Equal(t, []string{"log", "svn://h/r", "--xml", "--verbose", "-r", "1:2", "--non-interactive"}, fe.calls[0].args)
}

func TestLog_EmptyRange(t *testing.T) {
	fe := &fakeExec{handle: rangeLog}
	c := newTestClient(t, fe, Options{})

	entries, err := c.Log(context.Background(), "svn://h/r", 7, 7)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, fe.calls)
}

func TestLog_FallsBackToSingleRevisions(t *testing.T) {
	fe := &fakeExec{handle: func(dir string, args []string) (string, string, error) {
		rng := args[5]
		switch rng {
		case "4:5":
			return logXML(), "", nil
		case "5":
			return "", "svn: E160006: No such revision 5", exitStatus(1)
		}
		return rangeLog(dir, args)
	}}
	c := newTestClient(t, fe, Options{PageSize: 2})

	entries, err := c.Log(context.Background(), "svn://h/r", 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, revisions(entries))
	assert.Equal(t, []string{"4:5", "4", "5"}, revisionArgs(fe))
}

func TestLog_PageErrorFails(t *testing.T) {
	fe := &fakeExec{handle: func(string, []string) (string, string, error) {
		return "", "svn: E170013: Unable to connect", exitStatus(1)
	}}
	c := newTestClient(t, fe, Options{})

	_, err := c.Log(context.Background(), "svn://h/r", 0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to connect")
}

func TestLog_PausesBetweenPages(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fe := &fakeExec{handle: rangeLog}
	c := New(fe, Options{PageSize: 1, PagePause: time.Second}, zaptest.NewLogger(t).Sugar(), clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		entries []LogEntry
		err     error
	}
	done := make(chan result, 1)
	go func() {
		entries, err := c.Log(ctx, "svn://h/r", 0, 3)
		done <- result{entries, err}
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
	}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []int{1, 2, 3}, revisions(res.entries))
}

func TestLog_CanceledDuringPause(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fe := &fakeExec{handle: rangeLog}
	c := New(fe, Options{PageSize: 1, PagePause: time.Minute}, zaptest.NewLogger(t).Sugar(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Log(ctx, "svn://h/r", 0, 3)
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

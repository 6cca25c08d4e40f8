package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockCheck implements Check for testing.
type mockCheck struct {
	id     string
	result Result
	called bool
	clock  *clockwork.FakeClock
}

func (m *mockCheck) ID() string {
	return m.id
}

func (m *mockCheck) Run(ctx context.Context) Result {
	m.called = true
	if m.clock != nil {
		m.clock.Advance(3 * time.Second)
	}
	return m.result
}

func newTestRunner(t *testing.T, store *StateStore, checks ...Check) *Runner {
	t.Helper()
	return NewRunner(checks, store, zaptest.NewLogger(t).Sugar(), clockwork.NewFakeClock())
}

func TestRunner_RunAll(t *testing.T) {
	store := NewStateStore(t.TempDir())

	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass, From: 5, To: 5}}
	s2 := &mockCheck{id: "2", result: Result{Status: StatusChanged, From: 5, To: 7, Changes: 2}}

	r := newTestRunner(t, store, s1, s2)

	results, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.True(t, s1.called)
	assert.True(t, s2.called)
	require.Len(t, results, 2)
	assert.Equal(t, "2", results[1].Repository)

	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "pass", last.Status)
	assert.Equal(t, []string{"1", "2"}, last.Repositories)
	assert.Empty(t, last.Failed)
	assert.Equal(t, []string{"2"}, last.Changed)
	_, err = uuid.Parse(last.ID)
	assert.NoError(t, err)

	stored, err := store.ReadResult("2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, StatusChanged, stored.Status)
	assert.Equal(t, 2, stored.Changes)
}

func TestRunner_RunAll_Failure(t *testing.T) {
	store := NewStateStore(t.TempDir())

	s1 := &mockCheck{id: "1", result: Result{Status: StatusFail, Note: "svn: E170013"}}
	s2 := &mockCheck{id: "2", result: Result{Status: StatusPass}}

	r := newTestRunner(t, store, s1, s2)

	results, err := r.RunAll(context.Background())
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, []string{"1"}, runErr.Failed)
	assert.Equal(t, "checks failed: 1", err.Error())

	assert.True(t, s1.called)
	assert.True(t, s2.called, "a failed check must not stop the cycle")
	assert.Len(t, results, 2)

	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	assert.Equal(t, "fail", last.Status)
	assert.Equal(t, []string{"1"}, last.Failed)
}

func TestRunner_RecordsDuration(t *testing.T) {
	store := NewStateStore(t.TempDir())
	clock := clockwork.NewFakeClock()
	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass}, clock: clock}

	r := NewRunner([]Check{s1}, store, zaptest.NewLogger(t).Sugar(), clock)
	results, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, results[0].Duration)

	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, last.Finished.Sub(last.Started))
}

func TestRunner_Resume(t *testing.T) {
	store := NewStateStore(t.TempDir())

	require.NoError(t, store.WriteLastCycle(LastCycle{
		Status:       "fail",
		Repositories: []string{"1", "2", "gone"},
		Failed:       []string{"2", "gone"},
	}))

	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass}}
	s2 := &mockCheck{id: "2", result: Result{Status: StatusPass}} // it passes this time

	r := newTestRunner(t, store, s1, s2)

	_, err := r.Resume(context.Background())
	require.NoError(t, err)

	assert.False(t, s1.called)
	assert.True(t, s2.called)

	// A resume writes a new cycle that covers only the resumed checks.
	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	assert.Equal(t, "pass", last.Status)
	assert.Equal(t, []string{"2"}, last.Repositories)
}

func TestRunner_ResumeNothingFailed(t *testing.T) {
	store := NewStateStore(t.TempDir())
	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass}}

	results, err := newTestRunner(t, store, s1).Resume(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, s1.called)
}

func TestRunner_RunList(t *testing.T) {
	store := NewStateStore(t.TempDir())
	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass}}
	s2 := &mockCheck{id: "2", result: Result{Status: StatusSkip, Note: "notifications disabled"}}

	r := newTestRunner(t, store, s1, s2)

	results, err := r.RunList(context.Background(), []string{"2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, s1.called)
	assert.True(t, s2.called)

	_, err = r.RunList(context.Background(), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check not found: nope")
}

func TestRunner_StopsOnCancel(t *testing.T) {
	store := NewStateStore(t.TempDir())
	s1 := &mockCheck{id: "1", result: Result{Status: StatusPass}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newTestRunner(t, store, s1).RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s1.called)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSkip, results[0].Status)
}

// cancellingCheck cancels the cycle while it runs.
type cancellingCheck struct {
	mockCheck
	cancel context.CancelFunc
}

func (c *cancellingCheck) Run(ctx context.Context) Result {
	c.cancel()
	return c.mockCheck.Run(ctx)
}

func TestRunner_CancelMidCycleSkipsRest(t *testing.T) {
	store := NewStateStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s1 := &cancellingCheck{mockCheck: mockCheck{id: "1", result: Result{Status: StatusChanged, Changes: 2}}, cancel: cancel}
	s2 := &mockCheck{id: "2", result: Result{Status: StatusPass}}

	results, err := newTestRunner(t, store, s1, s2).RunAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, s1.called)
	assert.False(t, s2.called)

	require.Len(t, results, 2)
	assert.Equal(t, StatusChanged, results[0].Status)
	assert.Equal(t, StatusSkip, results[1].Status)
	assert.Equal(t, "cycle cancelled", results[1].Note)

	stored, err := store.ReadResult("2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, StatusSkip, stored.Status)

	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, []string{"1", "2"}, last.Repositories)
	assert.Empty(t, last.Failed)
}

func TestStateStore_EmptyAndReset(t *testing.T) {
	store := NewStateStore(t.TempDir())

	last, err := store.ReadLastCycle()
	require.NoError(t, err)
	assert.Nil(t, last)

	res, err := store.ReadResult("1")
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, store.WriteResult(Result{Repository: "1", Status: StatusPass}))
	require.NoError(t, store.Reset())
	res, err = store.ReadResult("1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

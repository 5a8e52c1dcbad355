package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func newTestStore() *StatusStore {
	return NewStatusStore(&stubClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)})
}

func TestInitializeFullResetsEverything(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	names := store.Initialize([]string{"a", "b", "c"}, ModeFull)
	require.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, store.Transition("a", ClubProcessing, ""))
	require.NoError(t, store.Transition("a", ClubFailed, "boom"))

	names = store.Initialize([]string{"a", "b", "c"}, ModeFull)
	require.Equal(t, []string{"a", "b", "c"}, names)
	for _, status := range store.Statuses() {
		require.Equal(t, ClubPending, status.State)
		require.Empty(t, status.LastError)
	}
}

func TestInitializeRetryTouchesOnlyFailed(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a", "b", "c"}, ModeFull)
	require.NoError(t, store.Transition("a", ClubProcessing, ""))
	require.NoError(t, store.Transition("a", ClubSucceeded, ""))
	require.NoError(t, store.Transition("b", ClubProcessing, ""))
	require.NoError(t, store.Transition("b", ClubFailed, "timeout"))
	require.NoError(t, store.Transition("c", ClubProcessing, ""))
	require.NoError(t, store.Transition("c", ClubFailed, "navigation"))

	names := store.Initialize(nil, ModeRetryFailed)
	require.Equal(t, []string{"b", "c"}, names)

	a, ok := store.Get("a")
	require.True(t, ok)
	require.Equal(t, ClubSucceeded, a.State)

	b, ok := store.Get("b")
	require.True(t, ok)
	require.Equal(t, ClubPending, b.State)
	require.Empty(t, b.LastError)
}

func TestTransitionRejectsInvalidMoves(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a"}, ModeFull)

	// Pending cannot jump straight to a terminal state.
	err := store.Transition("a", ClubSucceeded, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, store.Transition("a", ClubProcessing, ""))
	require.NoError(t, store.Transition("a", ClubSucceeded, ""))

	// Terminal states are frozen until the next Initialize.
	err = store.Transition("a", ClubProcessing, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionUnknownClub(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a"}, ModeFull)
	require.ErrorIs(t, store.Transition("zz", ClubProcessing, ""), ErrUnknownClub)
}

func TestFailedNamesPreservesOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a", "b", "c"}, ModeFull)
	for _, name := range []string{"c", "a"} {
		require.NoError(t, store.Transition(name, ClubProcessing, ""))
		require.NoError(t, store.Transition(name, ClubFailed, "x"))
	}
	require.Equal(t, []string{"a", "c"}, store.FailedNames())
}

func TestMarkPendingFailed(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a", "b", "c"}, ModeFull)
	require.NoError(t, store.Transition("a", ClubProcessing, ""))
	require.NoError(t, store.Transition("a", ClubSucceeded, ""))

	skipped := store.MarkPendingFailed("skipped after critical error")
	require.Equal(t, []string{"b", "c"}, skipped)

	b, _ := store.Get("b")
	require.Equal(t, ClubFailed, b.State)
	require.Equal(t, "skipped after critical error", b.LastError)

	a, _ := store.Get("a")
	require.Equal(t, ClubSucceeded, a.State)
}

func TestCountsMatchClubTotal(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	store.Initialize([]string{"a", "b", "c", "d"}, ModeFull)
	require.NoError(t, store.Transition("a", ClubProcessing, ""))
	require.NoError(t, store.Transition("a", ClubSucceeded, ""))
	require.NoError(t, store.Transition("b", ClubProcessing, ""))

	counts := Snapshot{Clubs: store.Statuses()}.Counts()
	require.Equal(t, 4, counts.Pending+counts.Processing+counts.Succeeded+counts.Failed)
	require.Equal(t, 1, counts.Succeeded)
	require.Equal(t, 1, counts.Processing)
	require.Equal(t, 2, counts.Pending)
}

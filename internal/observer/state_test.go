package observer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 10, 0, sec, 0, time.UTC)
}

func TestApplyFoldsFullRun(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	view := NewViewState()

	view.Apply(event.JobStarted(crawl.Job{
		ID:         jobID,
		State:      crawl.JobRunning,
		Mode:       crawl.ModeFull,
		TotalClubs: 2,
		Message:    "מתחיל איסוף נתונים",
	}, ts(0)))
	require.Equal(t, crawl.JobRunning, view.Job.State)
	require.Equal(t, 2, view.Job.TotalClubs)

	view.Apply(event.ClubProcessing(jobID, "c1", 1, 2, ts(1)))
	require.Equal(t, "c1", view.Job.CurrentClub)
	require.Equal(t, crawl.ClubProcessing, view.Clubs["c1"].State)

	view.Apply(event.DayProcessing(jobID, "c1", "2026-03-01", ts(2)))
	require.Equal(t, "2026-03-01", view.Job.CurrentDay)

	view.Apply(event.ClubSucceeded(jobID, "c1", 12, ts(3)))
	require.Equal(t, crawl.ClubSucceeded, view.Clubs["c1"].State)

	view.Apply(event.ClubProcessing(jobID, "c2", 2, 2, ts(4)))
	require.Empty(t, view.Job.CurrentDay) // reset at each club boundary

	view.Apply(event.ClubFailed(jobID, "c2", "timeout", ts(5)))
	require.Equal(t, crawl.ClubFailed, view.Clubs["c2"].State)
	require.Equal(t, "timeout", view.Clubs["c2"].LastError)

	completedAt := ts(6)
	view.Apply(event.JobFinished(crawl.Job{
		ID:          jobID,
		State:       crawl.JobCompleted,
		Progress:    100,
		CompletedAt: &completedAt,
	}, 1, 1, completedAt))
	require.Equal(t, crawl.JobCompleted, view.Job.State)
	require.Empty(t, view.Job.CurrentClub)
	require.Equal(t, 100, view.Job.Progress)
}

func TestApplyFullRunResetsClubs(t *testing.T) {
	t.Parallel()

	firstJob := uuid.New()
	view := NewViewState()
	view.Apply(event.ClubProcessing(firstJob, "c1", 1, 2, ts(0)))
	view.Apply(event.ClubSucceeded(firstJob, "c1", 5, ts(1)))
	view.Apply(event.ClubProcessing(firstJob, "c2", 2, 2, ts(2)))
	view.Apply(event.ClubSucceeded(firstJob, "c2", 3, ts(3)))
	completedAt := ts(4)
	view.Apply(event.JobFinished(crawl.Job{ID: firstJob, State: crawl.JobCompleted, CompletedAt: &completedAt}, 2, 0, completedAt))

	view.Apply(event.JobStarted(crawl.Job{
		ID:    uuid.New(),
		State: crawl.JobRunning,
		Mode:  crawl.ModeFull,
	}, ts(5)))
	require.Empty(t, view.Clubs)
}

func TestApplyRetryRunRependsFailedClubs(t *testing.T) {
	t.Parallel()

	firstJob := uuid.New()
	view := NewViewState()
	view.Apply(event.ClubSucceeded(firstJob, "c1", 5, ts(0)))
	view.Apply(event.ClubFailed(firstJob, "c2", "timeout", ts(1)))

	view.Apply(event.JobStarted(crawl.Job{
		ID:    uuid.New(),
		State: crawl.JobRunning,
		Mode:  crawl.ModeRetryFailed,
	}, ts(2)))

	require.Equal(t, crawl.ClubSucceeded, view.Clubs["c1"].State)
	require.Equal(t, crawl.ClubPending, view.Clubs["c2"].State)
	require.Empty(t, view.Clubs["c2"].LastError)
}

func TestApplyProgressIsMonotone(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	view := NewViewState()
	view.Apply(event.Progress(jobID, 60, "", ts(0)))
	view.Apply(event.Progress(jobID, 40, "", ts(1)))
	require.Equal(t, 60, view.Job.Progress)
}

func TestApplySnapshotReplacesState(t *testing.T) {
	t.Parallel()

	view := NewViewState()
	view.Apply(event.ClubProcessing(uuid.New(), "stale", 1, 1, ts(0)))

	snap := crawl.Snapshot{
		Job:   crawl.Job{State: crawl.JobRunning, Progress: 50},
		Clubs: []crawl.ClubStatus{{Name: "fresh", State: crawl.ClubPending}},
	}
	view.Apply(event.NewSnapshot(snap, ts(1)))

	require.Len(t, view.Clubs, 1)
	require.Contains(t, view.Clubs, "fresh")
	require.Equal(t, 50, view.Job.Progress)
}

func TestApplyWarning(t *testing.T) {
	t.Parallel()

	view := NewViewState()
	view.Apply(event.Warning(uuid.New(), "לוח השיעורים לא נמצא", ts(0)))
	require.Equal(t, "לוח השיעורים לא נמצא", view.LastWarning)
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	view := NewViewState()
	jobID := uuid.New()
	view.Apply(event.ClubProcessing(jobID, "c1", 1, 1, ts(0)))
	view.Apply(event.ClubSucceeded(jobID, "c1", 3, ts(1)))

	snap := view.Snapshot()
	require.Len(t, snap.Clubs, 1)

	restored := NewViewState()
	restored.Seed(snap)
	require.Equal(t, crawl.ClubSucceeded, restored.Clubs["c1"].State)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	view := NewViewState()
	view.Apply(event.ClubProcessing(uuid.New(), "c1", 1, 1, ts(0)))

	clone := view.Clone()
	clone.Clubs["c1"] = crawl.ClubStatus{Name: "c1", State: crawl.ClubFailed}
	require.Equal(t, crawl.ClubProcessing, view.Clubs["c1"].State)
}

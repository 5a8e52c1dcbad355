package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

type recordedOutcome struct {
	club    string
	state   string
	reason  string
	records int
}

type fakeRepo struct {
	started  []uuid.UUID
	finished []string
	outcomes []recordedOutcome
	closed   bool
}

func (f *fakeRepo) StartRun(_ context.Context, runID uuid.UUID, _ string, _ time.Time) error {
	f.started = append(f.started, runID)
	return nil
}

func (f *fakeRepo) FinishRun(_ context.Context, _ uuid.UUID, state string, _, _ bool, _ time.Time) error {
	f.finished = append(f.finished, state)
	return nil
}

func (f *fakeRepo) RecordClubOutcome(_ context.Context, _ uuid.UUID, club, state, reason string, records int, _ time.Time) error {
	f.outcomes = append(f.outcomes, recordedOutcome{club: club, state: state, reason: reason, records: records})
	return nil
}

func (f *fakeRepo) Close() { f.closed = true }

func TestHistorySinkPersistsLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	sink := NewHistorySink(repo)
	jobID := uuid.New()
	now := time.Now().UTC()

	events := []event.Event{
		{Kind: event.KindJobStarted, TS: now, JobID: jobID, Mode: crawl.ModeFull},
		{Kind: event.KindClubProcessing, TS: now, JobID: jobID, Club: "tel-aviv"},
		{Kind: event.KindClubSucceeded, TS: now, JobID: jobID, Club: "tel-aviv", Records: 9},
		{Kind: event.KindClubFailed, TS: now, JobID: jobID, Club: "haifa", Reason: "navigation timeout"},
		{Kind: event.KindJobFinished, TS: now, JobID: jobID, JobState: crawl.JobCompleted},
	}
	for _, evt := range events {
		require.NoError(t, sink.Consume(context.Background(), evt))
	}

	require.Equal(t, []uuid.UUID{jobID}, repo.started)
	require.Equal(t, []string{"completed"}, repo.finished)
	require.Equal(t, []recordedOutcome{
		{club: "tel-aviv", state: "success", records: 9},
		{club: "haifa", state: "failed", reason: "navigation timeout"},
	}, repo.outcomes)

	require.NoError(t, sink.Close(context.Background()))
	require.True(t, repo.closed)
}

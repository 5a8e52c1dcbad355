package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talbz/holmes-ma/internal/crawl"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobID := uuid.New()

	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"valid club event", ClubProcessing(jobID, "c1", 1, 5, now), false},
		{"valid progress", Progress(jobID, 40, "", now), false},
		{"valid finished", JobFinished(crawl.Job{ID: jobID, State: crawl.JobCompleted}, 1, 0, now), false},
		{"valid snapshot", NewSnapshot(crawl.Snapshot{Job: crawl.Job{ID: jobID}}, now), false},
		{"missing timestamp", Event{Kind: KindProgress, JobID: jobID}, true},
		{"missing club", Event{Kind: KindClubFailed, TS: now, JobID: jobID}, true},
		{"missing job id", Event{Kind: KindJobStarted, TS: now}, true},
		{"snapshot without payload", Event{Kind: KindSnapshot, TS: now, JobID: jobID}, true},
		{"unknown kind", Event{Kind: "mystery", TS: now}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

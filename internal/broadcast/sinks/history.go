package sinks

import (
	"context"
	"fmt"

	"github.com/talbz/holmes-ma/internal/event"
	"github.com/talbz/holmes-ma/internal/store"
)

// HistorySink persists run and club outcomes to the crawl-history repository.
type HistorySink struct {
	repo store.Repository
}

// NewHistorySink wraps a repository in the sink interface.
func NewHistorySink(repo store.Repository) *HistorySink {
	return &HistorySink{repo: repo}
}

// Consume writes the durable rows implied by one status event.
func (s *HistorySink) Consume(ctx context.Context, evt event.Event) error {
	switch evt.Kind {
	case event.KindJobStarted:
		if err := s.repo.StartRun(ctx, evt.JobID, string(evt.Mode), evt.TS); err != nil {
			return fmt.Errorf("persist run start: %w", err)
		}
	case event.KindClubSucceeded:
		if err := s.repo.RecordClubOutcome(ctx, evt.JobID, evt.Club, "success", "", evt.Records, evt.TS); err != nil {
			return fmt.Errorf("persist club success: %w", err)
		}
	case event.KindClubFailed:
		if err := s.repo.RecordClubOutcome(ctx, evt.JobID, evt.Club, "failed", evt.Reason, 0, evt.TS); err != nil {
			return fmt.Errorf("persist club failure: %w", err)
		}
	case event.KindJobFinished:
		if err := s.repo.FinishRun(ctx, evt.JobID, string(evt.JobState), evt.StoppedEarly, evt.CriticalError, evt.TS); err != nil {
			return fmt.Errorf("persist run finish: %w", err)
		}
	}
	return nil
}

// Close releases the repository's connections.
func (s *HistorySink) Close(context.Context) error {
	s.repo.Close()
	return nil
}

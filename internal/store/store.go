// Package store defines the optional crawl-history repository.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository records crawl runs and per-club outcomes for later inspection.
// All methods must be safe for concurrent use.
type Repository interface {
	StartRun(ctx context.Context, runID uuid.UUID, mode string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID uuid.UUID, state string, stoppedEarly, criticalError bool, finishedAt time.Time) error
	RecordClubOutcome(ctx context.Context, runID uuid.UUID, club, state, reason string, records int, at time.Time) error
	Close()
}

// Package postgres provides a Postgres-backed crawl-history repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// HistoryStore implements store.Repository on Postgres.
type HistoryStore struct {
	db DB
}

// New connects a pool for the given DSN.
func New(ctx context.Context, dsn string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &HistoryStore{db: pool}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Close releases the underlying pool.
func (s *HistoryStore) Close() {
	s.db.Close()
}

// StartRun inserts a row for a new crawl run.
func (s *HistoryStore) StartRun(ctx context.Context, runID uuid.UUID, mode string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, mode, started_at, state)
		VALUES ($1, $2, $3, 'running')
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, runID, mode, startedAt); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *HistoryStore) FinishRun(ctx context.Context, runID uuid.UUID, state string, stoppedEarly, criticalError bool, finishedAt time.Time) error {
	query := `
		UPDATE crawl_runs
		SET state = $1, stopped_early = $2, critical_error = $3, finished_at = $4
		WHERE id = $5;
	`
	if _, err := s.db.Exec(ctx, query, state, stoppedEarly, criticalError, finishedAt, runID); err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	return nil
}

// RecordClubOutcome upserts the terminal outcome for one club in a run.
func (s *HistoryStore) RecordClubOutcome(ctx context.Context, runID uuid.UUID, club, state, reason string, records int, at time.Time) error {
	query := `
		INSERT INTO crawl_club_outcomes (run_id, club, state, reason, records, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, club) DO UPDATE
		SET state = EXCLUDED.state,
		    reason = EXCLUDED.reason,
		    records = EXCLUDED.records,
		    recorded_at = EXCLUDED.recorded_at;
	`
	if _, err := s.db.Exec(ctx, query, runID, club, state, reason, records, at); err != nil {
		return fmt.Errorf("record club outcome: %w", err)
	}
	return nil
}

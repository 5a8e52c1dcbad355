// Package jsonl persists schedule records as JSON Lines files, one file per
// crawl run.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// Writer implements crawl.RecordSink. Each BeginJob opens a new run file
// named holmes_place_schedule_YYYYMMDD_HHMMSS.jsonl; WriteClub appends one
// line per record. Writes are serialized; the file is opened and closed per
// batch so a crash mid-run loses at most the in-flight club.
type Writer struct {
	dir string

	mu   sync.Mutex
	path string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// BeginJob selects the run file for subsequent WriteClub calls.
func (w *Writer) BeginJob(_ uuid.UUID, startedAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	name := fmt.Sprintf("holmes_place_schedule_%s.jsonl", startedAt.Format("20060102_150405"))
	w.path = filepath.Join(w.dir, name)

	// Create the file up front so a run with zero successful clubs still
	// leaves a trace, matching the status endpoint's freshness check.
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("create run file: %w", err)
	}
	return f.Close()
}

// WriteClub appends the club's records to the current run file.
func (w *Writer) WriteClub(ctx context.Context, club string, records []crawl.ScheduleRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.path == "" {
		return fmt.Errorf("no active run file; BeginJob not called")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open run file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, rec := range records {
		if rec.Club == "" {
			rec.Club = club
		}
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode record for %s: %w", club, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close run file: %w", err)
	}
	return nil
}

// Path returns the current run file path, empty before the first BeginJob.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

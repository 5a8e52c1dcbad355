// Package crawl defines the domain types shared by the crawl controller,
// the status broadcaster, and the scrape collaborators.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClubState tracks where a single club sits within a crawl run.
type ClubState string

// Allowed club states. A club only ever moves
// Pending -> Processing -> {Success, Failed} within one job.
const (
	ClubPending    ClubState = "pending"
	ClubProcessing ClubState = "processing"
	ClubSucceeded  ClubState = "success"
	ClubFailed     ClubState = "failed"
)

// ClubStatus is the per-club record kept by the StatusStore.
type ClubStatus struct {
	Name        string    `json:"name"`
	State       ClubState `json:"state"`
	LastError   string    `json:"last_error,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// JobState is the lifecycle state of a crawl job.
type JobState string

// Job lifecycle states.
const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobStopping  JobState = "stopping"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is final for a job.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Mode selects which clubs a crawl run visits.
type Mode string

// Crawl modes. ModeRetryFailed revisits only clubs whose previous recorded
// state was failed; everything else is left untouched.
const (
	ModeFull        Mode = "full"
	ModeRetryFailed Mode = "retry_failed"
)

// Job captures the state of one crawl run. It is mutated only by the
// controller and becomes immutable once its state is terminal.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	State         JobState   `json:"state"`
	Mode          Mode       `json:"mode"`
	TotalClubs    int        `json:"total_clubs"`
	CurrentIndex  int        `json:"current_index"`
	CurrentClub   string     `json:"current_club,omitempty"`
	CurrentDay    string     `json:"current_day,omitempty"`
	Progress      int        `json:"progress"`
	Message       string     `json:"message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	StoppedEarly  bool       `json:"stopped_early"`
	CriticalError bool       `json:"critical_error"`
}

// Snapshot is the full current state of a job plus all club statuses. It is
// everything a late-joining observer needs to reconstruct its view without
// replaying event history.
type Snapshot struct {
	Job   Job          `json:"job"`
	Clubs []ClubStatus `json:"clubs"`
}

// ClubCounts tallies club states within a snapshot.
type ClubCounts struct {
	Pending    int
	Processing int
	Succeeded  int
	Failed     int
}

// Counts aggregates the club states carried by the snapshot.
func (s Snapshot) Counts() ClubCounts {
	var c ClubCounts
	for _, club := range s.Clubs {
		switch club.State {
		case ClubPending:
			c.Pending++
		case ClubProcessing:
			c.Processing++
		case ClubSucceeded:
			c.Succeeded++
		case ClubFailed:
			c.Failed++
		}
	}
	return c
}

// Club identifies one gym branch to scrape.
type Club struct {
	Name   string `json:"name" mapstructure:"name"`
	URL    string `json:"url" mapstructure:"url"`
	Region string `json:"region,omitempty" mapstructure:"region"`
}

// ScheduleRecord is one extracted class entry, persisted as a JSONL row.
type ScheduleRecord struct {
	Club       string    `json:"club"`
	Day        string    `json:"day"`
	DayName    string    `json:"day_name_hebrew,omitempty"`
	Time       string    `json:"time"`
	Name       string    `json:"name"`
	Instructor string    `json:"instructor,omitempty"`
	Duration   string    `json:"duration,omitempty"`
	Location   string    `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScrapeOptions carries per-run knobs for the scrape collaborator.
type ScrapeOptions struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool
}

// ClubResult is the successful outcome of scraping one club.
type ClubResult struct {
	Records       []ScheduleRecord
	DaysProcessed int
}

// Scraper extracts the schedule for a single club. Implementations invoke
// onDay once per day column before processing it, and onWarn for per-item
// extraction trouble that does not fail the club; both callbacks may be nil.
// A returned error wrapping *CriticalError signals the whole site is
// unreachable or structurally broken, not just this club.
type Scraper interface {
	ScrapeClub(ctx context.Context, club Club, opts ScrapeOptions, onDay func(day string), onWarn func(message string)) (ClubResult, error)
}

// ClubSource resolves the set of clubs a full crawl should visit.
type ClubSource interface {
	Clubs(ctx context.Context) ([]Club, error)
}

// RecordSink receives extracted records for durable storage, one batch per
// successfully scraped club.
type RecordSink interface {
	BeginJob(jobID uuid.UUID, startedAt time.Time) error
	WriteClub(ctx context.Context, club string, records []ScheduleRecord) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// CriticalError marks a failure affecting the whole crawl rather than one
// club. The controller aborts remaining clubs when it sees one.
type CriticalError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *CriticalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("critical: %s: %v", e.Reason, e.Err)
	}
	return "critical: " + e.Reason
}

// Unwrap exposes the underlying cause.
func (e *CriticalError) Unwrap() error {
	return e.Err
}

// IsCritical reports whether err carries a *CriticalError anywhere in its
// chain.
func IsCritical(err error) bool {
	var ce *CriticalError
	return errors.As(err, &ce)
}

// Sentinel errors surfaced synchronously to API callers.
var (
	// ErrAlreadyRunning rejects a start request while a job is running or stopping.
	ErrAlreadyRunning = errors.New("a crawl job is already running")
	// ErrNotRunning signals a stop request with no active job.
	ErrNotRunning = errors.New("no crawl job is running")
	// ErrNoFailedClubs rejects a retry request when no club failed previously.
	ErrNoFailedClubs = errors.New("no failed clubs to retry")
	// ErrInvalidTransition marks a club state change outside the allowed set.
	ErrInvalidTransition = errors.New("invalid club state transition")
	// ErrUnknownClub marks a transition request for a club not in this run.
	ErrUnknownClub = errors.New("unknown club")
)

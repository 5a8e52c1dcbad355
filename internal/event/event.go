// Package event defines the closed set of status events exchanged between
// the crawl controller, the broadcaster, and observer sessions.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talbz/holmes-ma/internal/crawl"
)

// Kind tags the variant carried by an Event.
type Kind string

// Supported event kinds. KindSnapshot is synthetic: the broadcaster emits it
// to a single observer on attach or resync, it never flows through Publish.
const (
	KindSnapshot       Kind = "snapshot"
	KindJobStarted     Kind = "job_started"
	KindClubProcessing Kind = "club_processing"
	KindDayProcessing  Kind = "day_processing"
	KindClubSucceeded  Kind = "club_success"
	KindClubFailed     Kind = "club_failed"
	KindProgress       Kind = "progress"
	KindWarning        Kind = "warning"
	KindJobFinished    Kind = "job_finished"
)

// Event is one status update. Fields beyond Kind, TS and JobID are populated
// per kind; consumers dispatch on Kind through a single typed handler.
type Event struct {
	Kind  Kind      `json:"type"`
	TS    time.Time `json:"ts"`
	JobID uuid.UUID `json:"job_id,omitempty"`

	// Club-scoped fields.
	Club    string `json:"club,omitempty"`
	Day     string `json:"day,omitempty"`
	Index   int    `json:"index,omitempty"`
	Total   int    `json:"total,omitempty"`
	Records int    `json:"records,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// Job-scoped fields.
	Mode          crawl.Mode     `json:"mode,omitempty"`
	Percent       int            `json:"percent,omitempty"`
	Message       string         `json:"message,omitempty"`
	JobState      crawl.JobState `json:"job_state,omitempty"`
	StoppedEarly  bool           `json:"stopped_early,omitempty"`
	CriticalError bool           `json:"critical_error,omitempty"`
	Succeeded     int            `json:"succeeded,omitempty"`
	Failed        int            `json:"failed,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`

	// Snapshot payload, set only for KindSnapshot.
	Snapshot *crawl.Snapshot `json:"snapshot,omitempty"`
}

// Validate performs coarse validation before an event enters the stream.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindSnapshot:
		if e.Snapshot == nil {
			return errors.New("snapshot event requires payload")
		}
	case KindJobStarted, KindProgress, KindWarning, KindJobFinished:
		if e.JobID == uuid.Nil {
			return errors.New("job id is required")
		}
	case KindClubProcessing, KindDayProcessing, KindClubSucceeded, KindClubFailed:
		if e.Club == "" {
			return errors.New("club is required")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// NewSnapshot wraps a snapshot in a synthetic event.
func NewSnapshot(snap crawl.Snapshot, at time.Time) Event {
	return Event{
		Kind:     KindSnapshot,
		TS:       at,
		JobID:    snap.Job.ID,
		Snapshot: &snap,
	}
}

// JobStarted announces a new run.
func JobStarted(job crawl.Job, at time.Time) Event {
	return Event{
		Kind:     KindJobStarted,
		TS:       at,
		JobID:    job.ID,
		Mode:     job.Mode,
		Total:    job.TotalClubs,
		JobState: job.State,
		Message:  job.Message,
	}
}

// ClubProcessing marks the start of one club, carrying its 1-based position.
func ClubProcessing(jobID uuid.UUID, club string, index, total int, at time.Time) Event {
	return Event{
		Kind:  KindClubProcessing,
		TS:    at,
		JobID: jobID,
		Club:  club,
		Index: index,
		Total: total,
	}
}

// DayProcessing reports progress into one day column of a club schedule.
func DayProcessing(jobID uuid.UUID, club, day string, at time.Time) Event {
	return Event{
		Kind:  KindDayProcessing,
		TS:    at,
		JobID: jobID,
		Club:  club,
		Day:   day,
	}
}

// ClubSucceeded reports a completed club with its extracted record count.
func ClubSucceeded(jobID uuid.UUID, club string, records int, at time.Time) Event {
	return Event{
		Kind:    KindClubSucceeded,
		TS:      at,
		JobID:   jobID,
		Club:    club,
		Records: records,
	}
}

// ClubFailed reports a recoverable per-club failure.
func ClubFailed(jobID uuid.UUID, club, reason string, at time.Time) Event {
	return Event{
		Kind:   KindClubFailed,
		TS:     at,
		JobID:  jobID,
		Club:   club,
		Reason: reason,
	}
}

// Progress reports the aggregate completion percentage.
func Progress(jobID uuid.UUID, percent int, message string, at time.Time) Event {
	return Event{
		Kind:    KindProgress,
		TS:      at,
		JobID:   jobID,
		Percent: percent,
		Message: message,
	}
}

// Warning carries low-severity trouble that does not fail a club.
func Warning(jobID uuid.UUID, message string, at time.Time) Event {
	return Event{
		Kind:    KindWarning,
		TS:      at,
		JobID:   jobID,
		Message: message,
	}
}

// JobFinished announces a terminal job state with final counts.
func JobFinished(job crawl.Job, succeeded, failed int, at time.Time) Event {
	return Event{
		Kind:          KindJobFinished,
		TS:            at,
		JobID:         job.ID,
		JobState:      job.State,
		StoppedEarly:  job.StoppedEarly,
		CriticalError: job.CriticalError,
		Succeeded:     succeeded,
		Failed:        failed,
		CompletedAt:   job.CompletedAt,
		Percent:       job.Progress,
	}
}

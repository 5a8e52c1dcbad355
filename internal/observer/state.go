package observer

import (
	"time"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

// ViewState is the observer's local projection of the crawl: one job plus
// the statuses of every club it knows about. It is built exclusively by
// folding events through Apply, so there is a single state shape and a
// single place where event semantics are interpreted.
type ViewState struct {
	Job         crawl.Job
	Clubs       map[string]crawl.ClubStatus
	LastWarning string
	UpdatedAt   time.Time
}

// NewViewState returns an empty projection.
func NewViewState() ViewState {
	return ViewState{
		Job:   crawl.Job{State: crawl.JobIdle},
		Clubs: make(map[string]crawl.ClubStatus),
	}
}

// Seed replaces the projection with a snapshot, e.g. rehydrated state or the
// synthetic snapshot delivered on (re)connect.
func (v *ViewState) Seed(snap crawl.Snapshot) {
	v.Job = snap.Job
	v.Clubs = make(map[string]crawl.ClubStatus, len(snap.Clubs))
	for _, club := range snap.Clubs {
		v.Clubs[club.Name] = club
	}
}

// Apply folds one event into the projection.
func (v *ViewState) Apply(evt event.Event) {
	v.UpdatedAt = evt.TS
	switch evt.Kind {
	case event.KindSnapshot:
		if evt.Snapshot != nil {
			v.Seed(*evt.Snapshot)
		}
	case event.KindJobStarted:
		// A full run resets every club server-side; a retry only re-pends
		// the previously failed ones. The projection must mirror that or it
		// keeps showing the last run's outcomes.
		if evt.Mode == crawl.ModeRetryFailed {
			for name, st := range v.Clubs {
				if st.State == crawl.ClubFailed {
					st.State = crawl.ClubPending
					st.LastError = ""
					st.LastUpdated = evt.TS
					v.Clubs[name] = st
				}
			}
		} else {
			v.Clubs = make(map[string]crawl.ClubStatus)
		}
		v.Job = crawl.Job{
			ID:         evt.JobID,
			State:      crawl.JobRunning,
			Mode:       evt.Mode,
			TotalClubs: evt.Total,
			StartedAt:  evt.TS,
			Message:    evt.Message,
		}
	case event.KindClubProcessing:
		v.setClub(evt.Club, crawl.ClubProcessing, "", evt.TS)
		v.Job.CurrentClub = evt.Club
		v.Job.CurrentIndex = evt.Index - 1
		v.Job.CurrentDay = ""
		if evt.Total > 0 {
			v.Job.TotalClubs = evt.Total
		}
	case event.KindDayProcessing:
		v.Job.CurrentDay = evt.Day
	case event.KindClubSucceeded:
		v.setClub(evt.Club, crawl.ClubSucceeded, "", evt.TS)
	case event.KindClubFailed:
		v.setClub(evt.Club, crawl.ClubFailed, evt.Reason, evt.TS)
	case event.KindProgress:
		if evt.Percent > v.Job.Progress {
			v.Job.Progress = evt.Percent
		}
		if evt.Message != "" {
			v.Job.Message = evt.Message
		}
	case event.KindWarning:
		v.LastWarning = evt.Message
	case event.KindJobFinished:
		v.Job.State = evt.JobState
		v.Job.StoppedEarly = evt.StoppedEarly
		v.Job.CriticalError = evt.CriticalError
		v.Job.CompletedAt = evt.CompletedAt
		v.Job.CurrentClub = ""
		v.Job.CurrentDay = ""
		if evt.Percent > v.Job.Progress {
			v.Job.Progress = evt.Percent
		}
	}
}

// Snapshot converts the projection back into the wire snapshot form, used
// when persisting terminal state between page loads.
func (v ViewState) Snapshot() crawl.Snapshot {
	snap := crawl.Snapshot{Job: v.Job, Clubs: make([]crawl.ClubStatus, 0, len(v.Clubs))}
	for _, club := range v.Clubs {
		snap.Clubs = append(snap.Clubs, club)
	}
	return snap
}

// Clone deep-copies the projection for handing to callers.
func (v ViewState) Clone() ViewState {
	cp := v
	cp.Clubs = make(map[string]crawl.ClubStatus, len(v.Clubs))
	for name, club := range v.Clubs {
		cp.Clubs[name] = club
	}
	return cp
}

func (v *ViewState) setClub(name string, state crawl.ClubState, reason string, at time.Time) {
	if name == "" {
		return
	}
	st := v.Clubs[name]
	st.Name = name
	st.State = state
	st.LastError = reason
	st.LastUpdated = at
	v.Clubs[name] = st
}

package crawl

import (
	"fmt"
	"sync"
)

// StatusStore holds the per-club state for the current (and, across runs,
// the most recent) crawl job. Entries are never deleted; a new full run
// overwrites them, a retry run touches only the previously failed ones.
// It is safe for concurrent use.
type StatusStore struct {
	mu    sync.RWMutex
	order []string
	clubs map[string]ClubStatus
	clock Clock
}

// NewStatusStore constructs an empty store using the supplied clock.
func NewStatusStore(clock Clock) *StatusStore {
	return &StatusStore{
		clubs: make(map[string]ClubStatus),
		clock: clock,
	}
}

// Initialize prepares the store for a new run. In full mode every named club
// is reset to pending and stale entries from older runs are dropped. In
// retry mode only clubs whose recorded state is failed move back to pending;
// all others keep their prior state and are not part of the run. It returns
// the names taking part in this run, in stable iteration order.
func (s *StatusStore) Initialize(names []string, mode Mode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	if mode == ModeRetryFailed {
		var run []string
		for _, name := range s.order {
			st, ok := s.clubs[name]
			if !ok || st.State != ClubFailed {
				continue
			}
			st.State = ClubPending
			st.LastError = ""
			st.LastUpdated = now
			s.clubs[name] = st
			run = append(run, name)
		}
		return run
	}

	s.order = s.order[:0]
	s.clubs = make(map[string]ClubStatus, len(names))
	run := make([]string, 0, len(names))
	for _, name := range names {
		s.order = append(s.order, name)
		s.clubs[name] = ClubStatus{Name: name, State: ClubPending, LastUpdated: now}
		run = append(run, name)
	}
	return run
}

// Transition moves a club to newState, recording reason for failures. It
// returns ErrUnknownClub for names outside the store and ErrInvalidTransition
// for moves outside Pending -> Processing -> {Success, Failed}. Callers treat
// a transition error as a programming fault, not an operational one.
func (s *StatusStore) Transition(name string, newState ClubState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.clubs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClub, name)
	}
	if !validTransition(st.State, newState) {
		return fmt.Errorf("%w: %s -> %s for %q", ErrInvalidTransition, st.State, newState, name)
	}
	st.State = newState
	st.LastError = ""
	if newState == ClubFailed {
		st.LastError = reason
	}
	st.LastUpdated = s.clock.Now()
	s.clubs[name] = st
	return nil
}

// Statuses returns an immutable copy of every club status in iteration
// order, suitable for embedding in a broadcast snapshot.
func (s *StatusStore) Statuses() []ClubStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ClubStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.clubs[name])
	}
	return out
}

// Get returns the status for one club.
func (s *StatusStore) Get(name string) (ClubStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.clubs[name]
	return st, ok
}

// FailedNames lists clubs currently recorded as failed, in iteration order.
func (s *StatusStore) FailedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, name := range s.order {
		if s.clubs[name].State == ClubFailed {
			out = append(out, name)
		}
	}
	return out
}

// MarkPendingFailed fails every still-pending club with the given reason and
// returns their names in iteration order. It is the sanctioned bulk move for
// clubs skipped after a critical abort; per-club Transition keeps the strict
// Pending -> Processing -> terminal rules.
func (s *StatusStore) MarkPendingFailed(reason string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var out []string
	for _, name := range s.order {
		st := s.clubs[name]
		if st.State != ClubPending {
			continue
		}
		st.State = ClubFailed
		st.LastError = reason
		st.LastUpdated = now
		s.clubs[name] = st
		out = append(out, name)
	}
	return out
}

func validTransition(from, to ClubState) bool {
	switch from {
	case ClubPending:
		return to == ClubProcessing
	case ClubProcessing:
		return to == ClubSucceeded || to == ClubFailed
	default:
		// Success and Failed are terminal within a job; only Initialize may
		// reset a failed club back to pending for a retry run.
		return false
	}
}

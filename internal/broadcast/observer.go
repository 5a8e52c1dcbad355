package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

// ErrObserverClosed is returned by Next once the observer is detached.
var ErrObserverClosed = errors.New("observer closed")

// Observer is the server-side handle for one connected client. Events queue
// in FIFO order up to a bound; on overflow the oldest non-terminal event is
// dropped and the observer is marked for a full snapshot resync, so a slow
// consumer can never block the publisher and never misses a JobFinished.
type Observer struct {
	mu          sync.Mutex
	queue       []event.Event
	limit       int
	needsResync bool
	closed      bool
	notify      chan struct{}
	snapshotFn  func() crawl.Snapshot
	clock       crawl.Clock
}

func newObserver(limit int, snapshotFn func() crawl.Snapshot, clock crawl.Clock) *Observer {
	return &Observer{
		limit:      limit,
		notify:     make(chan struct{}, 1),
		snapshotFn: snapshotFn,
		clock:      clock,
		// Every observer starts with a resync so its first delivered event
		// is a consistent snapshot, regardless of when it attached.
		needsResync: true,
	}
}

// push enqueues a live event, applying the overflow policy.
func (o *Observer) push(evt event.Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if len(o.queue) >= o.limit {
		if idx := o.oldestDroppable(); idx >= 0 {
			o.queue = append(o.queue[:idx], o.queue[idx+1:]...)
			o.needsResync = true
		}
	}
	if len(o.queue) < o.limit || evt.Kind == event.KindJobFinished {
		o.queue = append(o.queue, evt)
	} else {
		// Queue is saturated with undroppable events; the forced resync
		// will carry the state this event would have conveyed.
		o.needsResync = true
	}
	o.mu.Unlock()
	o.wake()
}

// oldestDroppable finds the first queued event that may be discarded.
// JobFinished events are never dropped.
func (o *Observer) oldestDroppable() int {
	for i, evt := range o.queue {
		if evt.Kind != event.KindJobFinished {
			return i
		}
	}
	return -1
}

// ForceResync schedules a fresh snapshot ahead of any queued events. The
// broadcaster calls it when a client explicitly requests one.
func (o *Observer) ForceResync() {
	o.mu.Lock()
	o.needsResync = true
	o.mu.Unlock()
	o.wake()
}

// Next blocks until an event is available and returns it. A pending resync
// yields a freshly built snapshot event before any queued live event. It
// returns ErrObserverClosed after detach and ctx.Err() on cancellation.
func (o *Observer) Next(ctx context.Context) (event.Event, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return event.Event{}, ErrObserverClosed
		}
		if o.needsResync {
			o.needsResync = false
			o.mu.Unlock()
			return event.NewSnapshot(o.snapshotFn(), o.clock.Now()), nil
		}
		if len(o.queue) > 0 {
			evt := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return evt, nil
		}
		o.mu.Unlock()

		select {
		case <-o.notify:
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

func (o *Observer) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
	o.wake()
}

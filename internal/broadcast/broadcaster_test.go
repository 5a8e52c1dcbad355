package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

type stubSource struct {
	mu   sync.Mutex
	snap crawl.Snapshot
}

func (s *stubSource) Snapshot() crawl.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) set(snap crawl.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type collectSink struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
}

func (s *collectSink) Consume(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	return nil
}

func (s *collectSink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func clubEvent(jobID uuid.UUID, club string) event.Event {
	return event.ClubProcessing(jobID, club, 1, 5, stubClock{}.Now())
}

func newBroadcaster(t *testing.T, queueSize int, sinkList ...Sink) (*Broadcaster, *stubSource) {
	t.Helper()
	src := &stubSource{snap: crawl.Snapshot{Job: crawl.Job{State: crawl.JobIdle}}}
	b := New(Config{ObserverQueueSize: queueSize, Clock: stubClock{}, Logger: zap.NewNop()}, src, sinkList...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b, src
}

func TestObserverReceivesSnapshotFirst(t *testing.T) {
	t.Parallel()

	b, src := newBroadcaster(t, 8)
	jobID := uuid.New()
	src.set(crawl.Snapshot{
		Job:   crawl.Job{ID: jobID, State: crawl.JobRunning},
		Clubs: []crawl.ClubStatus{{Name: "c1", State: crawl.ClubProcessing}},
	})

	// Events published before attach must not leak into the new observer.
	b.Publish(clubEvent(jobID, "c0"))

	obs := b.Attach()
	evt, err := obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.KindSnapshot, evt.Kind)
	require.NotNil(t, evt.Snapshot)
	require.Equal(t, jobID, evt.Snapshot.Job.ID)
	require.Len(t, evt.Snapshot.Clubs, 1)

	b.Publish(clubEvent(jobID, "c1"))
	evt, err = obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.KindClubProcessing, evt.Kind)
	require.Equal(t, "c1", evt.Club)
}

func TestEventsDeliveredInOrder(t *testing.T) {
	t.Parallel()

	b, _ := newBroadcaster(t, 64)
	obs := b.Attach()

	_, err := obs.Next(context.Background()) // initial snapshot
	require.NoError(t, err)

	jobID := uuid.New()
	for i := 0; i < 10; i++ {
		b.Publish(clubEvent(jobID, fmt.Sprintf("club-%d", i)))
	}
	for i := 0; i < 10; i++ {
		evt, err := obs.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("club-%d", i), evt.Club)
	}
}

func TestOverflowDropsOldestAndForcesResync(t *testing.T) {
	t.Parallel()

	b, src := newBroadcaster(t, 2)
	obs := b.Attach()
	_, err := obs.Next(context.Background()) // initial snapshot
	require.NoError(t, err)

	jobID := uuid.New()
	src.set(crawl.Snapshot{Job: crawl.Job{ID: jobID, State: crawl.JobRunning}})

	// Three events into a queue of two: the first is dropped and a resync
	// is scheduled ahead of the survivors.
	b.Publish(clubEvent(jobID, "c1"))
	b.Publish(clubEvent(jobID, "c2"))
	b.Publish(clubEvent(jobID, "c3"))

	evt, err := obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.KindSnapshot, evt.Kind)

	evt, err = obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c2", evt.Club)

	evt, err = obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c3", evt.Club)
}

func TestJobFinishedNeverDropped(t *testing.T) {
	t.Parallel()

	b, _ := newBroadcaster(t, 2)
	obs := b.Attach()
	_, err := obs.Next(context.Background())
	require.NoError(t, err)

	jobID := uuid.New()
	finished := event.JobFinished(crawl.Job{ID: jobID, State: crawl.JobCompleted}, 5, 0, stubClock{}.Now())
	b.Publish(finished)
	// Flood the queue; the terminal event must survive every drop.
	for i := 0; i < 10; i++ {
		b.Publish(clubEvent(jobID, fmt.Sprintf("c%d", i)))
	}

	sawFinished := false
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		evt, err := obs.Next(ctx)
		require.NoError(t, err)
		if evt.Kind == event.KindJobFinished {
			sawFinished = true
			break
		}
	}
	require.True(t, sawFinished)
}

func TestForceResyncDeliversFreshSnapshot(t *testing.T) {
	t.Parallel()

	b, src := newBroadcaster(t, 8)
	obs := b.Attach()
	_, err := obs.Next(context.Background())
	require.NoError(t, err)

	jobID := uuid.New()
	src.set(crawl.Snapshot{Job: crawl.Job{ID: jobID, State: crawl.JobRunning, Progress: 60}})
	obs.ForceResync()

	evt, err := obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.KindSnapshot, evt.Kind)
	require.Equal(t, 60, evt.Snapshot.Job.Progress)
}

func TestDetachIsIdempotent(t *testing.T) {
	t.Parallel()

	b, _ := newBroadcaster(t, 8)
	obs := b.Attach()
	require.Equal(t, 1, b.ObserverCount())

	b.Detach(obs)
	b.Detach(obs)
	require.Zero(t, b.ObserverCount())

	_, err := obs.Next(context.Background())
	require.ErrorIs(t, err, ErrObserverClosed)
}

func TestInvalidEventsAreDiscarded(t *testing.T) {
	t.Parallel()

	b, _ := newBroadcaster(t, 8)
	obs := b.Attach()
	_, err := obs.Next(context.Background())
	require.NoError(t, err)

	b.Publish(event.Event{Kind: "bogus"})
	b.Publish(clubEvent(uuid.New(), "c1"))

	evt, err := obs.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, event.KindClubProcessing, evt.Kind)
}

func TestSinksReceivePublishedEvents(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	b, _ := newBroadcaster(t, 8, sink)

	jobID := uuid.New()
	for i := 0; i < 3; i++ {
		b.Publish(clubEvent(jobID, fmt.Sprintf("c%d", i)))
	}

	require.Eventually(t, func() bool {
		return sink.count() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseClosesSinksAndObservers(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	src := &stubSource{}
	b := New(Config{ObserverQueueSize: 8, Clock: stubClock{}, Logger: zap.NewNop()}, src, sink)
	obs := b.Attach()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))

	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	require.True(t, closed)

	_, err := obs.Next(context.Background())
	require.ErrorIs(t, err, ErrObserverClosed)
}

// Package broadcast fans crawl status events out to connected observers and
// to server-side sinks. One producer (the controller) feeds any number of
// consumers; a slow consumer never applies backpressure upstream.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

// SnapshotSource supplies the authoritative current state for late joiners
// and resyncs. The controller implements it.
type SnapshotSource interface {
	Snapshot() crawl.Snapshot
}

// Sink consumes events on the broadcaster's background goroutine.
// Implementations must honor ctx deadlines; a failing sink is logged and
// skipped, never fatal.
type Sink interface {
	Consume(ctx context.Context, evt event.Event) error
	Close(ctx context.Context) error
}

// Config controls buffering for the Broadcaster.
//   - ObserverQueueSize: per-observer bounded queue (default 256).
//   - SinkBufferSize: size of the sink delivery channel (default 1024).
//   - SinkTimeout: per-sink timeout for one event (default 5s).
type Config struct {
	ObserverQueueSize int
	SinkBufferSize    int
	SinkTimeout       time.Duration
	Clock             crawl.Clock
	Logger            *zap.Logger
}

const (
	defaultObserverQueueSize = 256
	defaultSinkBufferSize    = 1024
	defaultSinkTimeout       = 5 * time.Second
)

// Broadcaster multicasts each published event to all attached observers and
// delivers it to registered sinks. Publish never blocks.
type Broadcaster struct {
	cfg    Config
	src    SnapshotSource
	sinks  []Sink
	logger *zap.Logger

	mu        sync.Mutex
	observers map[*Observer]struct{}

	events  chan event.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64

	closeOnce sync.Once
}

// New constructs a Broadcaster and starts its sink delivery goroutine.
func New(cfg Config, src SnapshotSource, sinks ...Sink) *Broadcaster {
	if cfg.ObserverQueueSize <= 0 {
		cfg.ObserverQueueSize = defaultObserverQueueSize
	}
	if cfg.SinkBufferSize <= 0 {
		cfg.SinkBufferSize = defaultSinkBufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broadcaster{
		cfg:       cfg,
		src:       src,
		sinks:     append([]Sink(nil), sinks...),
		logger:    logger,
		observers: make(map[*Observer]struct{}),
		events:    make(chan event.Event, cfg.SinkBufferSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish delivers evt to every attached observer queue in emission order
// and hands it to the sink goroutine. It never blocks: if the sink channel
// is full the event is dropped for sinks only (observers still get it) and
// a drop counter increments.
func (b *Broadcaster) Publish(evt event.Event) {
	if b == nil || b.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid event", zap.Error(err))
		return
	}

	b.mu.Lock()
	for obs := range b.observers {
		obs.push(evt)
	}
	b.mu.Unlock()

	select {
	case b.events <- evt:
	default:
		if n := b.dropped.Add(1); n%100 == 1 {
			b.logger.Warn("sink events dropped due to backpressure", zap.Int64("dropped", n))
		}
	}
}

// Attach registers a new observer. Its first delivered event is a snapshot
// built at read time, strictly before any subsequent live event.
func (b *Broadcaster) Attach() *Observer {
	obs := newObserver(b.cfg.ObserverQueueSize, b.src.Snapshot, b.clock())
	b.mu.Lock()
	b.observers[obs] = struct{}{}
	n := len(b.observers)
	b.mu.Unlock()
	b.logger.Info("observer attached", zap.Int("observers", n))
	return obs
}

// Detach removes an observer and closes its queue. It is idempotent.
func (b *Broadcaster) Detach(obs *Observer) {
	if obs == nil {
		return
	}
	b.mu.Lock()
	_, known := b.observers[obs]
	delete(b.observers, obs)
	n := len(b.observers)
	b.mu.Unlock()
	if known {
		obs.close()
		b.logger.Info("observer detached", zap.Int("observers", n))
	}
}

// ObserverCount reports the number of attached observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Close stops sink delivery after draining buffered events, closes all
// sinks, and detaches every observer.
func (b *Broadcaster) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
	})
	select {
	case <-b.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("broadcaster close wait: %w", ctx.Err())
	}

	b.mu.Lock()
	observers := make([]*Observer, 0, len(b.observers))
	for obs := range b.observers {
		observers = append(observers, obs)
	}
	b.observers = make(map[*Observer]struct{})
	b.mu.Unlock()
	for _, obs := range observers {
		obs.close()
	}

	for _, sink := range b.sinks {
		if err := sink.Close(ctx); err != nil {
			b.logger.Warn("sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (b *Broadcaster) run() {
	defer close(b.doneCh)
	for {
		select {
		case evt := <-b.events:
			b.deliver(evt)
		case <-b.stopCh:
			for {
				select {
				case evt := <-b.events:
					b.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Broadcaster) deliver(evt event.Event) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			b.logger.Warn("sink consume failed", zap.String("kind", string(evt.Kind)), zap.Error(err))
		}
		cancel()
	}
}

func (b *Broadcaster) clock() crawl.Clock {
	if b.cfg.Clock != nil {
		return b.cfg.Clock
	}
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

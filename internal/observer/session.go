// Package observer implements the client side of the status stream: one
// Session per connected observer, owning the connection lifecycle, the
// reconnection policy, and the fold from events into local view state.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

// ConnState is the connection lifecycle state of a session.
type ConnState string

// Connection states. A transport fault moves the session to ConnError, which
// reconnection treats exactly like ConnDisconnected.
const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnError        ConnState = "error"
)

// ConnInfo describes the session's connection bookkeeping at one moment.
type ConnInfo struct {
	State ConnState
	// Attempts counts consecutive failed connection attempts; it resets to
	// zero on a successful open.
	Attempts int
	// DisconnectedSince is set on the first disconnect and cleared only by
	// a successful reconnect; it drives the adaptive backoff.
	DisconnectedSince time.Time
	// NextAttemptAt is when the next scheduled attempt fires, zero while
	// connected or attempting.
	NextAttemptAt time.Time
}

// Hooks let the observer-facing surface react to session activity. All
// callbacks are optional and invoked from the session goroutine.
type Hooks struct {
	// OnConn fires on every connection state change.
	OnConn func(info ConnInfo)
	// OnCountdown fires roughly once per second while a reconnect attempt
	// is scheduled, carrying the remaining wait.
	OnCountdown func(remaining time.Duration)
	// OnUpdate fires after each event is folded into the view.
	OnUpdate func(view ViewState)
}

// Config configures a Session.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:port/ws.
	URL              string
	Backoff          BackoffPolicy
	HandshakeTimeout time.Duration
	// CountdownTick controls countdown granularity (default 1s).
	CountdownTick time.Duration
	// Cache optionally persists terminal snapshots between runs.
	Cache  SnapshotCache
	Clock  crawl.Clock
	Logger *zap.Logger
	Hooks  Hooks
}

// Session is one observer's connection to the status stream. Create it with
// New and drive it with Run; View and Conn are safe from any goroutine.
type Session struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger

	mu   sync.Mutex
	view ViewState
	info ConnInfo

	retryNow chan struct{}
}

// snapshotRequest is the only client-to-server message: it asks the
// broadcaster for a forced resync.
type snapshotRequest struct {
	Type string `json:"type"`
}

// New constructs a Session. If a cache is configured and holds a snapshot
// with a terminal job state, the view is seeded from it; a persisted running
// snapshot is never trusted, since the real job may have finished or never
// existed after a restart.
func New(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("observer: url is required")
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   logger,
		view:     NewViewState(),
		info:     ConnInfo{State: ConnDisconnected},
		retryNow: make(chan struct{}, 1),
	}

	if cfg.Cache != nil {
		snap, ok, err := cfg.Cache.Load()
		if err != nil {
			logger.Warn("snapshot cache load failed", zap.Error(err))
		} else if ok && snap.Job.State.Terminal() {
			s.view.Seed(snap)
		}
	}
	return s, nil
}

// Run connects and keeps the session alive until ctx is done, reconnecting
// with the adaptive backoff policy after every transport fault. It returns
// ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := s.waitForAttempt(ctx); err != nil {
			return err
		}

		conn, err := s.connect(ctx)
		if err != nil {
			s.recordFailure(err)
			continue
		}

		err = s.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recordFailure(err)
	}
}

// RetryNow cancels any scheduled reconnect timer and attempts immediately.
func (s *Session) RetryNow() {
	select {
	case s.retryNow <- struct{}{}:
	default:
	}
}

// View returns a deep copy of the current projection.
func (s *Session) View() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Clone()
}

// Conn returns the current connection bookkeeping.
func (s *Session) Conn() ConnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// waitForAttempt sleeps out the backoff delay before the next attempt,
// emitting countdown ticks. The very first attempt and any attempt after
// RetryNow proceed immediately.
func (s *Session) waitForAttempt(ctx context.Context) error {
	s.mu.Lock()
	since := s.info.DisconnectedSince
	s.mu.Unlock()
	if since.IsZero() {
		return ctx.Err()
	}

	delay := s.cfg.Backoff.Delay(s.cfg.Clock.Now().Sub(since))
	deadline := s.cfg.Clock.Now().Add(delay)

	s.mu.Lock()
	s.info.NextAttemptAt = deadline
	info := s.info
	s.mu.Unlock()
	s.notifyConn(info)

	ticker := time.NewTicker(s.cfg.CountdownTick)
	defer ticker.Stop()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.retryNow:
			s.logger.Info("manual reconnect requested")
			return nil
		case <-timer.C:
			return nil
		case <-ticker.C:
			if s.cfg.Hooks.OnCountdown != nil {
				remaining := deadline.Sub(s.cfg.Clock.Now())
				if remaining < 0 {
					remaining = 0
				}
				s.cfg.Hooks.OnCountdown(remaining)
			}
		}
	}
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	s.setConnState(ConnConnecting)

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.info = ConnInfo{State: ConnConnected}
	info := s.info
	s.mu.Unlock()
	s.notifyConn(info)
	s.logger.Info("connected", zap.String("url", s.cfg.URL))

	// A retry token buffered while already connected must not skip the
	// backoff wait after the next disconnect.
	select {
	case <-s.retryNow:
	default:
	}

	// Ask for a fresh snapshot rather than trusting local state, which may
	// be stale or mid-job. The server also snapshots on attach; requesting
	// explicitly covers reconnects racing a job transition.
	if err := conn.WriteJSON(snapshotRequest{Type: "snapshot_request"}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("request snapshot: %w", err)
	}
	return conn, nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var evt event.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		s.apply(evt)
	}
}

func (s *Session) apply(evt event.Event) {
	s.mu.Lock()
	s.view.Apply(evt)
	view := s.view.Clone()
	s.mu.Unlock()

	if s.cfg.Hooks.OnUpdate != nil {
		s.cfg.Hooks.OnUpdate(view)
	}
	if s.cfg.Cache != nil && evt.Kind == event.KindJobFinished && view.Job.State.Terminal() {
		if err := s.cfg.Cache.Store(view.Snapshot()); err != nil {
			s.logger.Warn("snapshot cache store failed", zap.Error(err))
		}
	}
}

// recordFailure books one failed attempt or a dropped connection, starting
// the disconnection clock if it is not already running.
func (s *Session) recordFailure(err error) {
	if err != nil {
		s.logger.Warn("connection lost", zap.Error(err))
	}
	s.mu.Lock()
	s.info.State = ConnError
	s.info.Attempts++
	s.info.NextAttemptAt = time.Time{}
	if s.info.DisconnectedSince.IsZero() {
		s.info.DisconnectedSince = s.cfg.Clock.Now()
	}
	info := s.info
	s.mu.Unlock()
	s.notifyConn(info)
}

func (s *Session) setConnState(state ConnState) {
	s.mu.Lock()
	s.info.State = state
	info := s.info
	s.mu.Unlock()
	s.notifyConn(info)
}

func (s *Session) notifyConn(info ConnInfo) {
	if s.cfg.Hooks.OnConn != nil {
		s.cfg.Hooks.OnConn(info)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/broadcast"
	"github.com/talbz/holmes-ma/internal/event"
	"github.com/talbz/holmes-ma/internal/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from a separate origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsClientMessage struct {
	Type string `json:"type"`
}

// serveWS upgrades the connection and streams status events to the observer.
// The first frame a client receives is always a snapshot of the current
// state; afterwards live events follow in order.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	obs := s.broadcaster.Attach()
	metrics.IncObservers()
	defer func() {
		s.broadcaster.Detach(obs)
		metrics.DecObservers()
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readPump(cancel, conn, obs)
	s.writePump(ctx, conn, obs)
}

// readPump consumes client frames. The only meaningful message is a snapshot
// request, which forces a resync on the observer queue. Any read error ends
// the session.
func (s *Server) readPump(cancel context.CancelFunc, conn *websocket.Conn, obs *broadcast.Observer) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		if msg.Type == "snapshot_request" {
			obs.ForceResync()
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, obs *broadcast.Observer) {
	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	events := make(chan struct {
		evt event.Event
		err error
	})
	go func() {
		for {
			evt, err := obs.Next(ctx)
			select {
			case events <- struct {
				evt event.Event
				err error
			}{evt, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case pair := <-events:
			if pair.err != nil {
				if !errors.Is(pair.err, context.Canceled) && !errors.Is(pair.err, broadcast.ErrObserverClosed) {
					s.logger.Debug("observer stream ended", zap.Error(pair.err))
				}
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(pair.evt); err != nil {
				return
			}
		}
	}
}

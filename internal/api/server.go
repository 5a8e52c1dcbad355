// Package api exposes the HTTP interface for the crawl service: the control
// endpoints, the schedule query endpoint, and the websocket status stream.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/broadcast"
	"github.com/talbz/holmes-ma/internal/config"
	"github.com/talbz/holmes-ma/internal/controller"
	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/metrics"
)

// Server wires HTTP handlers to the controller and the broadcaster.
type Server struct {
	router      chi.Router
	ctrl        *controller.Controller
	broadcaster *broadcast.Broadcaster
	cfg         config.Config
	clock       crawl.Clock
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	ctrl *controller.Controller,
	broadcaster *broadcast.Broadcaster,
	cfg config.Config,
	clock crawl.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	// The middleware and the websocket gauge touch the package collectors;
	// they must exist before the first request is served.
	metrics.Init()
	s := &Server{
		ctrl:        ctrl,
		broadcaster: broadcaster,
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", s.serveWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/start", s.startCrawl)
			r.Post("/stop", s.stopCrawl)
			r.Post("/retry", s.retryCrawl)
			r.Get("/status", s.crawlStatus)
		})
		r.Get("/classes", s.listClasses)
		r.Get("/class-names", s.listClassNames)
		r.Get("/instructors", s.listInstructors)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the websocket upgrade to pass through the
// middleware chain.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

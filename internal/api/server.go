// Package api serves the authenticated admin surface: session inspection
// and deletion, manual job triggers, stats, and a live event stream. It is
// meant for operators and the dashboard, not for forges; webhook traffic
// has its own listener.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/session"
	"github.com/navvy-dev/navvy/internal/workspace"
)

// SessionAdmin is the orchestrator-side contract the API drives.
type SessionAdmin interface {
	ListSessions(ctx context.Context) ([]workspace.Session, error)
	SessionSizes(ctx context.Context) ([]workspace.SizeInfo, error)
	Stats(ctx context.Context) (session.Stats, error)
	DeleteSession(ctx context.Context, key string) error
}

// JobQueuer is the queue-side contract the API drives.
type JobQueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
	Get(ctx context.Context, jobID string) (*queue.Job, error)
	Depth(ctx context.Context) (int, error)
}

type Server struct {
	cfg       config.APIConfig
	sessions  SessionAdmin
	queue     JobQueuer
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(cfg config.APIConfig, sessions SessionAdmin, q JobQueuer, hub *events.Hub) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		queue:     q,
		hub:       hub,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start runs the server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the event stream holds connections open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}
}

// Routes builds the router. Exposed separately so tests can drive handlers
// without a listening socket.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/v1/sessions", s.handleListSessions)
		r.Get("/v1/sessions/sizes", s.handleSessionSizes)
		r.Delete("/v1/sessions", s.handleDeleteSession)
		r.Get("/v1/stats", s.handleStats)
		r.Post("/v1/trigger", s.handleTrigger)
		r.Get("/v1/jobs/{jobID}", s.handleGetJob)
		r.Get("/v1/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

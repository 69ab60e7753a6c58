package webhook

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zeebo/blake3"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/ticket"
)

// JobQueuer is the queue-side contract the server needs.
type JobQueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// Server terminates forge webhooks and feeds the job queue.
type Server struct {
	cfg    config.WebhooksConfig
	rt     *config.Runtime
	queue  JobQueuer
	logger *slog.Logger
	server *http.Server

	githubSecret string
	jiraToken    string
}

// New builds the webhook server, resolving endpoint credentials through the
// vault up front so a bad ref fails at startup, not on the first delivery.
func New(cfg config.WebhooksConfig, rt *config.Runtime, q JobQueuer, vault secrets.Vault) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		rt:     rt,
		queue:  q,
		logger: log.WithComponent("webhook"),
	}

	if cfg.GitHub != nil {
		secret, err := vault.Get(cfg.GitHub.SecretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve github webhook secret %q: %w", cfg.GitHub.SecretRef, err)
		}
		s.githubSecret = secret
	}
	if cfg.Jira != nil {
		token, err := vault.Get(cfg.Jira.TokenRef)
		if err != nil {
			return nil, fmt.Errorf("resolve jira webhook token %q: %w", cfg.Jira.TokenRef, err)
		}
		s.jiraToken = token
	}

	return s, nil
}

// Start runs the listener until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
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

	if s.cfg.GitHub != nil {
		r.Post(s.cfg.GitHub.Path, s.handleGitHub)
	}
	if s.cfg.Jira != nil {
		r.Post(s.cfg.Jira.Path, s.handleJira)
	}
	return r
}

// loggingMiddleware logs requests without payload content; webhook bodies
// can carry issue text that does not belong in logs.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, s.cfg.GitHub.MaxBodySize)
	if !ok {
		return
	}

	if err := verifySignature(body, r.Header.Get("X-Hub-Signature-256"), s.githubSecret); err != nil {
		s.logger.Warn("github signature verification failed", "remote_addr", r.RemoteAddr)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	tk, actionable, err := extractGitHub(body, s.rt.BotName())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if !actionable {
		s.respondJSON(w, http.StatusOK, IgnoreResponse{Status: "ignored"})
		return
	}

	// GitHub redeliveries reuse the delivery GUID; fall back to a body
	// hash for manual replays.
	dedupe := "github:" + r.Header.Get("X-GitHub-Delivery")
	if dedupe == "github:" {
		dedupe = "github:" + hashBody(body)
	}

	s.enqueue(w, r, tk, dedupe)
}

func (s *Server) handleJira(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, s.cfg.Jira.MaxBodySize)
	if !ok {
		return
	}

	if err := verifyToken(r.Header.Get(jiraTokenHeader), s.jiraToken); err != nil {
		s.logger.Warn("jira token verification failed", "remote_addr", r.RemoteAddr)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	tk, actionable, err := extractJira(body, s.rt.BotName())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if !actionable {
		s.respondJSON(w, http.StatusOK, IgnoreResponse{Status: "ignored"})
		return
	}

	s.enqueue(w, r, tk, "jira:"+hashBody(body))
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, tk ticket.Ticket, dedupeKey string) {
	key, err := tk.Key()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	prompt, err := tk.Prompt()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	payload, err := json.Marshal(tk)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), queue.EnqueueRequest{
		Kind:        string(tk.Kind),
		TicketKey:   key,
		Prompt:      prompt,
		Payload:     payload,
		SubmittedBy: "webhook:" + r.URL.Path,
		DedupeKey:   &dedupeKey,
	})
	if errors.Is(err, queue.ErrDuplicate) {
		s.logger.Info("duplicate delivery", "path", r.URL.Path, "ticket_key", key, "job_id", jobID)
		s.respondJSON(w, http.StatusAccepted, AcceptResponse{JobID: jobID, TicketKey: key, Duplicate: true})
		return
	}
	if err != nil {
		s.logger.Error("enqueue webhook job", "path", r.URL.Path, "ticket_key", key, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.logger.Info("webhook job enqueued", "path", r.URL.Path, "ticket_key", key, "job_id", jobID)
	s.respondJSON(w, http.StatusAccepted, AcceptResponse{JobID: jobID, TicketKey: key})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, maxSize int64) ([]byte, bool) {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return nil, false
	}
	if int64(len(body)) > maxSize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}
	return body, true
}

func hashBody(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:16])
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

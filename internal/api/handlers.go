package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/navvy-dev/navvy/internal/queue"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}
	stats, err := s.sessions.Stats(r.Context())
	if err != nil {
		s.logger.Error("compute session stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute session stats")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
		Sessions:      stats,
	})
}

// handleListSessions handles GET /v1/sessions. The metadata comes from the
// control plane only; no workspace is walked.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionResponse{
			Key:            sess.Key,
			CreatedAt:      sess.CreatedAt,
			LastUsed:       sess.LastUsed,
			HasSessionData: sess.HasSessionData,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleSessionSizes handles GET /v1/sessions/sizes, the explicit slow path.
func (s *Server) handleSessionSizes(w http.ResponseWriter, r *http.Request) {
	sizes, err := s.sessions.SessionSizes(r.Context())
	if err != nil {
		s.logger.Error("measure sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to measure sessions")
		return
	}

	out := make([]SessionSizeResponse, 0, len(sizes))
	for _, info := range sizes {
		out = append(out, SessionSizeResponse{
			Key:            info.Key,
			SessionBytes:   info.SizeBytes,
			WorkspaceBytes: info.WorkspaceSizeBytes,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleDeleteSession handles DELETE /v1/sessions?key=<ticket key>. The key
// rides in a query parameter because ticket keys contain path separators.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if strings.TrimSpace(key) == "" {
		s.writeError(w, http.StatusBadRequest, "missing key parameter")
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), key); err != nil {
		s.logger.Warn("delete session", "ticket_key", key, "error", err)
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(r.Context())
	if err != nil {
		s.logger.Error("compute session stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute session stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleTrigger handles POST /v1/trigger: a manual job submission carrying
// a full ticket, bypassing the webhook listeners.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Ticket.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := req.Ticket.Key()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt, err := req.Ticket.Prompt()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := json.Marshal(req.Ticket)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), queue.EnqueueRequest{
		Kind:        string(req.Ticket.Kind),
		TicketKey:   key,
		Prompt:      prompt,
		Payload:     payload,
		SubmittedBy: "api",
	})
	if err != nil {
		s.logger.Error("enqueue triggered job", "ticket_key", key, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.logger.Info("job triggered", "ticket_key", key, "job_id", jobID)
	s.writeJSON(w, http.StatusAccepted, TriggerResponse{JobID: jobID, TicketKey: key})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.queue.Get(r.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, JobResponse{
		JobID:       job.ID,
		Kind:        job.Kind,
		TicketKey:   job.TicketKey,
		Status:      string(job.Status),
		SubmittedBy: job.SubmittedBy,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		LastError:   job.LastError,
	})
}

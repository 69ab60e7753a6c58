package api

import (
	"time"

	"github.com/navvy-dev/navvy/internal/session"
	"github.com/navvy-dev/navvy/internal/ticket"
)

type HealthzResponse struct {
	Status        string        `json:"status"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	QueueDepth    int           `json:"queue_depth"`
	Sessions      session.Stats `json:"sessions"`
}

type SessionResponse struct {
	Key            string    `json:"key"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsed       time.Time `json:"last_used"`
	HasSessionData bool      `json:"has_session_data"`
}

type SessionSizeResponse struct {
	Key            string `json:"key"`
	SessionBytes   int64  `json:"session_bytes"`
	WorkspaceBytes int64  `json:"workspace_bytes"`
}

type TriggerRequest struct {
	Ticket ticket.Ticket `json:"ticket"`
}

type TriggerResponse struct {
	JobID     string `json:"job_id"`
	TicketKey string `json:"ticket_key"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type JobResponse struct {
	JobID       string     `json:"job_id"`
	Kind        string     `json:"kind"`
	TicketKey   string     `json:"ticket_key"`
	Status      string     `json:"status"`
	SubmittedBy string     `json:"submitted_by"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

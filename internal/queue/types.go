package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Job is one pending or settled assistant invocation. Kind and TicketKey
// are denormalized from the payload so operators can query the queue
// without decoding tickets.
type Job struct {
	ID          string
	Kind        string
	TicketKey   string
	Prompt      string
	Payload     json.RawMessage
	Status      Status
	Attempt     int
	MaxAttempts int
	SubmittedBy string
	DedupeKey   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

type EnqueueRequest struct {
	Kind        string
	TicketKey   string
	Prompt      string
	Payload     json.RawMessage
	MaxAttempts int
	SubmittedBy string
	DedupeKey   *string
}

// ErrDuplicate reports that an open job with the same dedupe key already
// exists. Enqueue returns it together with the existing job's ID.
var ErrDuplicate = errors.New("duplicate job")

var ErrJobNotFound = errors.New("job not found")

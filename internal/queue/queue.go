package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxOutputBytes = 64 * 1024

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a job. When req carries a dedupe key and an open job with
// that key exists, the existing job's ID is returned with ErrDuplicate.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.TicketKey == "" {
		return "", fmt.Errorf("ticket_key is empty")
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if req.DedupeKey != nil && *req.DedupeKey != "" {
		var existing string
		err := tx.QueryRowContext(ctx, `
SELECT id FROM job_queue
WHERE dedupe_key = ? AND status IN (?, ?)
LIMIT 1;
`, *req.DedupeKey, StatusQueued, StatusRunning).Scan(&existing)
		switch {
		case err == nil:
			return existing, ErrDuplicate
		case errors.Is(err, sql.ErrNoRows):
			// No open job with this key; proceed.
		default:
			return "", fmt.Errorf("check dedupe key: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO job_queue(
  id, kind, ticket_key, prompt, payload, status, attempt, max_attempts, submitted_by, dedupe_key,
  created_at
)
VALUES(?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?);
`, id, req.Kind, req.TicketKey, req.Prompt, payload, StatusQueued, maxAttempts, req.SubmittedBy, req.DedupeKey, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest queued job and marks it running. Returns (nil, nil)
// if the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	nowS := time.Now().UTC().Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM job_queue
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE job_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING
  id, kind, ticket_key, prompt, payload, status, attempt, max_attempts, submitted_by, dedupe_key,
  created_at, started_at, completed_at, last_error;
`, StatusQueued, StatusRunning, nowS)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// Get returns one job by ID, or ErrJobNotFound.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT
  id, kind, ticket_key, prompt, payload, status, attempt, max_attempts, submitted_by, dedupe_key,
  created_at, started_at, completed_at, last_error
FROM job_queue
WHERE id = ?;
`, jobID)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Complete marks a job terminal and appends a row to job_log.
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, lastError, output *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if status != StatusSucceeded && status != StatusFailed && status != StatusTimedOut {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		kind        string
		ticketKey   string
		attempt     int
		submittedBy string
		createdAt   string
	)
	if err := tx.QueryRowContext(ctx, `
SELECT kind, ticket_key, attempt, submitted_by, created_at
FROM job_queue
WHERE id = ?;
`, jobID).Scan(&kind, &ticketKey, &attempt, &submittedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("load job for completion: %w", err)
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, completedAt, lastError, jobID)
	if err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}

	logID := fmt.Sprintf("%s-%d", jobID, attempt)
	var outputVal any
	if output != nil {
		s := *output
		if len(s) > maxOutputBytes {
			s = s[:maxOutputBytes]
		}
		outputVal = s
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO job_log(
  id, kind, ticket_key, status, attempt, submitted_by, created_at, completed_at, last_error, output
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, logID, kind, ticketKey, status, attempt, submittedBy, createdAt, completedAt, lastError, outputVal)
	if err != nil {
		return fmt.Errorf("insert job_log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Depth counts jobs still queued.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_queue WHERE status = ?;", StatusQueued).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return n, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		j            Job
		payload      sql.NullString
		dedupeKey    sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
		statusS      string
	)
	err := row.Scan(
		&j.ID, &j.Kind, &j.TicketKey, &j.Prompt, &payload, &statusS, &j.Attempt, &j.MaxAttempts, &j.SubmittedBy, &dedupeKey,
		&createdAtS, &startedAtS, &completedAtS, &lastError,
	)
	if err != nil {
		return nil, err
	}

	j.Status = Status(statusS)
	if payload.Valid {
		j.Payload = []byte(payload.String)
	}
	if dedupeKey.Valid {
		j.DedupeKey = &dedupeKey.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		j.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			j.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			j.CompletedAt = &t
		}
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}

// Package worker runs the serial dispatch loop: dequeue one job, run it
// through the session orchestrator, settle it in the queue, and post the
// result back to the originating ticket. Serial execution is deliberate;
// one assistant invocation at a time keeps resource usage predictable and
// sidesteps per-workspace locking.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/notify"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/session"
	"github.com/navvy-dev/navvy/internal/supervise"
	"github.com/navvy-dev/navvy/internal/ticket"
)

// maxCommentOutput caps how much assistant output is quoted in a result
// comment.
const maxCommentOutput = 8 * 1024

// Processor is the session-side contract the worker drives.
type Processor interface {
	Process(ctx context.Context, job session.Job) (*session.Outcome, error)
}

type Worker struct {
	queue     *queue.Queue
	processor Processor
	notifier  notify.Commenter
	cfg       *config.Runtime
	logger    *slog.Logger
}

func New(q *queue.Queue, p Processor, n notify.Commenter, cfg *config.Runtime) *Worker {
	return &Worker{
		queue:     q,
		processor: p,
		notifier:  n,
		cfg:       cfg,
		logger:    log.WithComponent("worker"),
	}
}

// Start runs the dispatch loop until ctx is cancelled. Jobs are dequeued and
// executed one at a time.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("dispatch loop started")
	defer w.logger.Info("dispatch loop stopped")

	ticker := time.NewTicker(w.cfg.Snapshot().Service.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessNext(ctx); err != nil {
				// Individual job trouble never crashes the loop.
				w.logger.Error("process job", "error", err)
			}
		}
	}
}

// ProcessNext dequeues and executes at most one job. A nil return with an
// empty queue is not an error.
func (w *Worker) ProcessNext(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return nil
	}

	w.execute(ctx, job)
	return nil
}

func (w *Worker) execute(ctx context.Context, job *queue.Job) {
	jobLogger := log.WithJob(job.ID).With("ticket_key", job.TicketKey)
	jobLogger.Info("executing job", "kind", job.Kind, "attempt", job.Attempt)

	var tk ticket.Ticket
	if err := json.Unmarshal(job.Payload, &tk); err != nil {
		msg := fmt.Sprintf("decode ticket payload: %v", err)
		jobLogger.Error(msg)
		w.complete(ctx, jobLogger, job.ID, queue.StatusFailed, &msg, nil)
		return
	}

	var output bytes.Buffer
	outcome, err := w.processor.Process(ctx, session.Job{
		ID:     job.ID,
		Ticket: tk,
		Output: &output,
	})

	status := queue.StatusSucceeded
	var lastError *string
	if err != nil {
		status = queue.StatusFailed
		var timeoutErr *supervise.TimeoutError
		if errors.As(err, &timeoutErr) {
			status = queue.StatusTimedOut
		}
		msg := err.Error()
		lastError = &msg
		jobLogger.Warn("job failed", "status", status, "error", err)
	} else {
		jobLogger.Info("job succeeded", "duration", outcome.Result.Duration)
	}

	outputS := output.String()
	w.complete(ctx, jobLogger, job.ID, status, lastError, &outputS)

	if w.notifier != nil {
		body := w.resultComment(job, status, lastError, outputS)
		if err := w.notifier.Comment(ctx, tk, body); err != nil {
			// Best-effort: the job already settled.
			jobLogger.Warn("post result comment", "error", err)
		}
	}
}

func (w *Worker) complete(ctx context.Context, logger *slog.Logger, jobID string, status queue.Status, lastError, output *string) {
	if err := w.queue.Complete(ctx, jobID, status, lastError, output); err != nil {
		logger.Error("complete job", "status", status, "error", err)
	}
}

// resultComment renders the comment posted back to the ticket. The assistant
// output is quoted with its tail preserved, since conclusions come last.
func (w *Worker) resultComment(job *queue.Job, status queue.Status, lastError *string, output string) string {
	bot := w.cfg.BotName()

	var b strings.Builder
	switch status {
	case queue.StatusSucceeded:
		fmt.Fprintf(&b, "%s finished job `%s`.\n", bot, job.ID)
	case queue.StatusTimedOut:
		fmt.Fprintf(&b, "%s gave up on job `%s`: the assistant ran out of time.\n", bot, job.ID)
	default:
		fmt.Fprintf(&b, "%s could not finish job `%s`.\n", bot, job.ID)
	}

	if lastError != nil {
		fmt.Fprintf(&b, "\nError: %s\n", *lastError)
	}

	if trimmed := strings.TrimSpace(output); trimmed != "" {
		if len(trimmed) > maxCommentOutput {
			trimmed = "…" + trimmed[len(trimmed)-maxCommentOutput:]
		}
		fmt.Fprintf(&b, "\n<details><summary>Assistant output</summary>\n\n```\n%s\n```\n</details>\n", trimmed)
	}
	return b.String()
}

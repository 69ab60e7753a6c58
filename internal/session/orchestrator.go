package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/navvy-dev/navvy/internal/assist"
	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/supervise"
	"github.com/navvy-dev/navvy/internal/ticket"
	"github.com/navvy-dev/navvy/internal/workspace"
)

// Invoker runs a supervised assistant invocation. Satisfied by
// *supervise.Supervisor.
type Invoker interface {
	Invoke(spec supervise.Spec) (supervise.Result, error)
}

// SpecBuilder assembles the invocation spec for a job. Satisfied by
// *assist.Builder.
type SpecBuilder interface {
	Build(req assist.Request) (supervise.Spec, error)
}

// Job is one unit of ticket work handed to the orchestrator.
type Job struct {
	ID     string
	Ticket ticket.Ticket

	// Output, when set, receives the assistant's combined output live.
	Output io.Writer
}

// Outcome is the settled result of one processed job.
type Outcome struct {
	Key     string
	Resumed bool
	Created bool
	Result  supervise.Result
}

// Stats summarizes the resident session population.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	SoftCap   int `json:"soft_cap"`
	Available int `json:"available"`
}

// Orchestrator composes store, eviction, supervision, and recency per job.
type Orchestrator struct {
	store   *workspace.Store
	evictor *Evictor
	busy    *busySet
	builder SpecBuilder
	invoker Invoker
	cfg     *config.Runtime
	hub     *events.Hub
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrchestrator wires the session lifecycle. Pruner() returns a pruner
// sharing the same busy-key guard.
func NewOrchestrator(store *workspace.Store, cfg *config.Runtime, builder SpecBuilder, invoker Invoker, hub *events.Hub) *Orchestrator {
	busy := newBusySet()
	return &Orchestrator{
		store:   store,
		evictor: NewEvictor(store, cfg, busy, hub),
		busy:    busy,
		builder: builder,
		invoker: invoker,
		cfg:     cfg,
		hub:     hub,
		logger:  log.WithComponent("session"),
		now:     time.Now,
	}
}

// Pruner returns a pruner sharing this orchestrator's busy-key guard.
func (o *Orchestrator) Pruner() *Pruner {
	return NewPruner(o.store, o.cfg, o.busy, o.hub)
}

// Process runs one job end to end: reuse or create the workspace, enforce
// capacity, invoke the assistant, and bump recency after settlement.
// Invocation failures propagate to the caller; the workspace is deliberately
// kept so a retry can resume where the failed attempt left off.
func (o *Orchestrator) Process(ctx context.Context, job Job) (*Outcome, error) {
	key, err := job.Ticket.Key()
	if err != nil {
		return nil, fmt.Errorf("derive ticket key: %w", err)
	}

	jobLogger := log.WithJob(job.ID).With("ticket_key", key)

	if !o.busy.acquire(key) {
		return nil, fmt.Errorf("session %q already has an active invocation", key)
	}
	defer o.busy.release(key)

	exists, err := o.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check session %q: %w", key, err)
	}
	if !exists {
		o.evictor.EnsureCapacity(ctx)
	}

	handle, created, err := o.store.GetOrCreate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get or create workspace %q: %w", key, err)
	}
	if created {
		jobLogger.Info("created workspace", "dir", handle.Dir)
		if o.hub != nil {
			o.hub.Publish("session.created", map[string]any{"key": key})
		}
	}

	resume := o.store.HasExistingSession(handle)

	spec, err := o.builder.Build(assist.Request{
		Ticket:   job.Ticket,
		WorkDir:  handle.Dir,
		StateDir: o.store.StateDir(handle),
		Resume:   resume,
		Output:   job.Output,
	})
	if err != nil {
		o.settle(ctx, jobLogger, handle, job.ID, false, false, err)
		return nil, fmt.Errorf("build invocation for %q: %w", key, err)
	}

	jobLogger.Info("invoking assistant", "resume", resume, "timeout", spec.Timeout)
	result, invokeErr := o.invoker.Invoke(spec)

	o.settle(ctx, jobLogger, handle, job.ID, true, invokeErr == nil, invokeErr)

	outcome := &Outcome{Key: key, Resumed: resume, Created: created, Result: result}
	if invokeErr != nil {
		jobLogger.Warn("invocation failed, workspace retained", "error", invokeErr)
		return outcome, fmt.Errorf("invoke assistant for %q: %w", key, invokeErr)
	}

	jobLogger.Info("invocation succeeded", "duration", result.Duration)
	return outcome, nil
}

// settle performs the post-invocation bookkeeping that must happen after
// every attempt: recording continuation data and bumping last_used.
// Bookkeeping trouble is logged, never allowed to mask the job's outcome.
func (o *Orchestrator) settle(ctx context.Context, logger *slog.Logger, handle workspace.Handle, jobID string, spawned, success bool, invokeErr error) {
	// If the assistant never ran, whether the spec could not be built or the
	// spawn itself failed, there is nothing to continue from; every other
	// settled attempt leaves a session.
	var spawnErr *supervise.SpawnError
	if spawned && !errors.As(invokeErr, &spawnErr) {
		rec := workspace.InvocationRecord{
			JobID:     jobID,
			SettledAt: o.now().UTC(),
			Success:   success,
		}
		if invokeErr != nil {
			rec.LastError = invokeErr.Error()
		}
		if err := o.store.RecordInvocation(handle, rec); err != nil {
			logger.Error("record invocation", "error", err)
		}
	}

	if err := o.store.Touch(ctx, handle.Key); err != nil {
		logger.Error("touch session", "error", err)
	}

	if o.hub != nil {
		o.hub.Publish("job.settled", map[string]any{
			"job_id":  jobID,
			"key":     handle.Key,
			"success": success,
		})
	}
}

// ListSessions returns all resident sessions.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]workspace.Session, error) {
	return o.store.List(ctx)
}

// SessionSizes measures every resident session. This is the explicit slow
// path; it walks each workspace recursively.
func (o *Orchestrator) SessionSizes(ctx context.Context) ([]workspace.SizeInfo, error) {
	sessions, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]workspace.SizeInfo, 0, len(sessions))
	for _, sess := range sessions {
		info, err := o.store.SizeOf(ctx, sess.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Stats reports resident totals against the soft cap.
func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	total, err := o.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	softCap := o.cfg.Sessions().MaxSessions
	available := softCap - total
	if available < 0 {
		available = 0
	}

	return Stats{
		Total:     total,
		Active:    o.busy.count(),
		SoftCap:   softCap,
		Available: available,
	}, nil
}

// DeleteSession removes a session on request, with the same destructive
// semantics as eviction and pruning. Active sessions are refused.
func (o *Orchestrator) DeleteSession(ctx context.Context, key string) error {
	if o.busy.isBusy(key) {
		return fmt.Errorf("session %q has an active invocation", key)
	}
	if err := o.store.Remove(ctx, key); err != nil {
		return err
	}
	o.logger.Info("deleted session", "ticket_key", key)
	if o.hub != nil {
		o.hub.Publish("session.deleted", map[string]any{"key": key})
	}
	return nil
}

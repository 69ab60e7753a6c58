package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/workspace"
)

// PruneTickError scopes a failure to one session within one tick. It is
// logged and swallowed; a bad session never aborts the tick or the pruner.
type PruneTickError struct {
	Key string
	Err error
}

func (e *PruneTickError) Error() string {
	return fmt.Sprintf("prune session %q: %v", e.Key, e.Err)
}

func (e *PruneTickError) Unwrap() error { return e.Err }

// Pruner removes sessions whose idle age exceeds the configured threshold.
// It is a safety net for long-tail inactivity, independent of the soft cap,
// and runs even when the resident count is below capacity.
type Pruner struct {
	store  *workspace.Store
	cfg    *config.Runtime
	busy   *busySet
	hub    *events.Hub
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPruner(store *workspace.Store, cfg *config.Runtime, busy *busySet, hub *events.Hub) *Pruner {
	return &Pruner{
		store:  store,
		cfg:    cfg,
		busy:   busy,
		hub:    hub,
		logger: log.WithComponent("prune"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start begins the prune loop: one tick immediately, then one per configured
// interval. Blocking work happens on a background goroutine.
func (p *Pruner) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop gracefully stops the pruner.
func (p *Pruner) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	p.Tick(ctx)

	interval := p.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick(ctx)
			// The interval is runtime-configurable; pick up changes
			// between ticks.
			if next := p.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			p.logger.Warn("prune loop context cancelled")
			return
		}
	}
}

func (p *Pruner) interval() time.Duration {
	return time.Duration(p.cfg.Sessions().PruneIntervalDays) * 24 * time.Hour
}

// Tick performs one prune pass. Per-session failures are logged and the pass
// continues; an enumeration failure skips the pass entirely.
func (p *Pruner) Tick(ctx context.Context) {
	sessions, err := p.store.List(ctx)
	if err != nil {
		p.logger.Error("list sessions for pruning", "error", err)
		return
	}

	threshold := time.Duration(p.cfg.Sessions().PruneThresholdDays) * 24 * time.Hour
	now := p.now()

	pruned := 0
	for _, sess := range sessions {
		if p.busy.isBusy(sess.Key) {
			continue
		}

		// Strict inequality: a session exactly at the threshold stays.
		age := now.Sub(sess.LastUsed)
		if age <= threshold {
			continue
		}

		if err := p.store.Remove(ctx, sess.Key); err != nil {
			tickErr := &PruneTickError{Key: sess.Key, Err: err}
			p.logger.Error("prune tick failure", "ticket_key", sess.Key, "error", tickErr)
			continue
		}

		pruned++
		p.logger.Info("pruned session", "ticket_key", sess.Key, "idle", age, "threshold", threshold)
		if p.hub != nil {
			p.hub.Publish("session.pruned", map[string]any{"key": sess.Key})
		}
	}

	if pruned > 0 {
		p.logger.Info("prune tick complete", "pruned", pruned, "scanned", len(sessions))
	}
}

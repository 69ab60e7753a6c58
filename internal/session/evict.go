package session

import (
	"context"
	"log/slog"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/workspace"
)

// Evictor enforces the soft session cap. It runs synchronously, in-line,
// before a session is created for a previously-absent key.
type Evictor struct {
	store  *workspace.Store
	cfg    *config.Runtime
	busy   *busySet
	hub    *events.Hub
	logger *slog.Logger
}

func NewEvictor(store *workspace.Store, cfg *config.Runtime, busy *busySet, hub *events.Hub) *Evictor {
	return &Evictor{
		store:  store,
		cfg:    cfg,
		busy:   busy,
		hub:    hub,
		logger: log.WithComponent("evict"),
	}
}

// EnsureCapacity removes least-recently-used sessions until a new session
// can be created without exceeding the soft cap. Eviction is best-effort
// maintenance: failures are logged and the caller proceeds, since the cap is
// soft and must never halt job processing.
func (e *Evictor) EnsureCapacity(ctx context.Context) {
	max := e.cfg.Sessions().MaxSessions

	for {
		count, err := e.store.Count(ctx)
		if err != nil {
			e.logger.Error("count sessions for eviction", "error", err)
			return
		}
		if count < max {
			return
		}

		victim, ok, err := e.store.LeastRecentlyUsed(ctx, e.busy.snapshot())
		if err != nil {
			e.logger.Error("select eviction victim", "error", err)
			return
		}
		if !ok {
			// Every resident session is busy; the cap is soft, so let
			// the new session through.
			e.logger.Warn("soft cap reached but all resident sessions are active", "resident", count, "soft_cap", max)
			return
		}

		// Remove is idempotent: a victim that vanished concurrently
		// counts as evicted.
		if err := e.store.Remove(ctx, victim.Key); err != nil {
			e.logger.Error("evict session", "ticket_key", victim.Key, "error", err)
			return
		}

		e.logger.Info("evicted session", "ticket_key", victim.Key, "last_used", victim.LastUsed, "resident", count, "soft_cap", max)
		if e.hub != nil {
			e.hub.Publish("session.evicted", map[string]any{"key": victim.Key})
		}
	}
}

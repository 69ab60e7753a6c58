package config

import (
	"fmt"
	"sync"
)

// Runtime is the shared configuration collaborator handed to components.
// Values are read at decision time; a reload swaps the whole snapshot, so
// readers may briefly observe the previous values. That staleness is
// acceptable for the soft cap and prune thresholds.
type Runtime struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewRuntime wraps an already-validated Config.
func NewRuntime(cfg *Config, path string) *Runtime {
	return &Runtime{cfg: cfg, path: path}
}

// Snapshot returns the current configuration value.
func (r *Runtime) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.cfg
}

// Sessions returns the current session lifecycle settings.
func (r *Runtime) Sessions() SessionsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Sessions
}

// Assistant returns the current assistant invocation settings.
func (r *Runtime) Assistant() AssistantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Assistant
}

// BotName returns the configured bot mention name.
func (r *Runtime) BotName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Service.BotName
}

// SetSessions replaces the session lifecycle settings after validating them.
func (r *Runtime) SetSessions(s SessionsConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := *r.cfg
	candidate.Sessions = s
	if err := Validate(&candidate); err != nil {
		return err
	}
	r.cfg = &candidate
	return nil
}

// Reload re-reads the config file this Runtime was built from and swaps the
// snapshot. The previous snapshot stays in effect if loading fails.
func (r *Runtime) Reload() error {
	if r.path == "" {
		return fmt.Errorf("runtime config has no backing file")
	}

	cfg, err := Load(r.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	return nil
}

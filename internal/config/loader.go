package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a YAML file. ${VAR} references in
// the file body are expanded from the process environment before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}

	return cfg, nil
}

// applyDefaults backfills zero-valued fields the YAML left unset.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.BotName == "" {
		cfg.Service.BotName = def.Service.BotName
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.TickInterval <= 0 {
		cfg.Service.TickInterval = def.Service.TickInterval
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = def.Service.LockPath
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = def.Sessions.Dir
	}
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = def.Sessions.MaxSessions
	}
	if cfg.Sessions.PruneThresholdDays == 0 {
		cfg.Sessions.PruneThresholdDays = def.Sessions.PruneThresholdDays
	}
	if cfg.Sessions.PruneIntervalDays == 0 {
		cfg.Sessions.PruneIntervalDays = def.Sessions.PruneIntervalDays
	}
	if cfg.Assistant.Command == "" {
		cfg.Assistant.Command = def.Assistant.Command
	}
	if cfg.Assistant.Model == "" {
		cfg.Assistant.Model = def.Assistant.Model
	}
	if cfg.Assistant.Timeout <= 0 {
		cfg.Assistant.Timeout = def.Assistant.Timeout
	}
	if cfg.Assistant.Grace <= 0 {
		cfg.Assistant.Grace = def.Assistant.Grace
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
}

// Validate checks configuration constraints.
func Validate(cfg *Config) error {
	if cfg.Sessions.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be >= 1, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Sessions.PruneThresholdDays < 1 {
		return fmt.Errorf("sessions.prune_threshold_days must be >= 1, got %d", cfg.Sessions.PruneThresholdDays)
	}
	if cfg.Sessions.PruneIntervalDays < 1 {
		return fmt.Errorf("sessions.prune_interval_days must be >= 1, got %d", cfg.Sessions.PruneIntervalDays)
	}
	if cfg.Assistant.Command == "" {
		return fmt.Errorf("assistant.command is empty")
	}
	if cfg.Assistant.Grace <= 0 || cfg.Assistant.Grace >= cfg.Assistant.Timeout {
		return fmt.Errorf("assistant.grace must be positive and shorter than assistant.timeout")
	}
	if cfg.API.Enabled && cfg.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required when api.enabled is true")
	}
	if cfg.Webhooks != nil {
		if cfg.Webhooks.Listen == "" {
			return fmt.Errorf("webhooks.listen is empty")
		}
		if cfg.Webhooks.GitHub == nil && cfg.Webhooks.Jira == nil {
			return fmt.Errorf("webhooks configured but no endpoints defined")
		}
		if cfg.Webhooks.GitHub != nil && cfg.Webhooks.GitHub.SecretRef == "" {
			return fmt.Errorf("webhooks.github.secret_ref is empty")
		}
		if cfg.Webhooks.Jira != nil && cfg.Webhooks.Jira.TokenRef == "" {
			return fmt.Errorf("webhooks.jira.token_ref is empty")
		}
	}
	if cfg.Service.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("service.tick_interval too small: %v", cfg.Service.TickInterval)
	}
	return nil
}

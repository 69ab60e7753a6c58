package config

import "time"

// Config represents the complete navvy configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Assistant AssistantConfig `yaml:"assistant"`
	Secrets   SecretsConfig   `yaml:"secrets,omitempty"`
	API       APIConfig       `yaml:"api,omitempty"`
	Webhooks  *WebhooksConfig `yaml:"webhooks,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	BotName      string        `yaml:"bot_name"`
	LogLevel     string        `yaml:"log_level"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LockPath     string        `yaml:"lock_path"`
}

// StateConfig defines control-plane storage settings (SQLite).
type StateConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig defines workspace/session lifecycle settings.
type SessionsConfig struct {
	// Dir is the data-plane root holding one workspace directory per ticket.
	Dir string `yaml:"dir"`

	// MaxSessions is the soft cap enforced by LRU eviction.
	MaxSessions int `yaml:"max_sessions"`

	// PruneThresholdDays: sessions idle strictly longer than this are pruned.
	PruneThresholdDays int `yaml:"prune_threshold_days"`

	// PruneIntervalDays is the pruner's tick interval.
	PruneIntervalDays int `yaml:"prune_interval_days"`
}

// AssistantConfig defines the supervised coding-assistant CLI invocation.
type AssistantConfig struct {
	Command string        `yaml:"command"`
	Model   string        `yaml:"model"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	Grace   time.Duration `yaml:"grace"`
}

// SecretsConfig points at the age-encrypted secrets vault.
type SecretsConfig struct {
	File         string `yaml:"file,omitempty"`
	IdentityFile string `yaml:"identity_file,omitempty"`
}

// APIConfig defines admin HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen string            `yaml:"listen"`
	GitHub *GitHubHookConfig `yaml:"github,omitempty"`
	Jira   *JiraHookConfig   `yaml:"jira,omitempty"`
}

// GitHubHookConfig defines the GitHub webhook endpoint.
type GitHubHookConfig struct {
	Path        string `yaml:"path"`
	SecretRef   string `yaml:"secret_ref"`
	MaxBodySize int64  `yaml:"max_body_size,omitempty"`
}

// JiraHookConfig defines the Jira webhook endpoint.
type JiraHookConfig struct {
	Path        string `yaml:"path"`
	TokenRef    string `yaml:"token_ref"`
	MaxBodySize int64  `yaml:"max_body_size,omitempty"`
}

// NotifyConfig defines result-comment posting targets.
type NotifyConfig struct {
	GitHub *GitHubNotifyConfig `yaml:"github,omitempty"`
	Jira   *JiraNotifyConfig   `yaml:"jira,omitempty"`
}

// GitHubNotifyConfig configures the GitHub issue-comment client.
type GitHubNotifyConfig struct {
	APIBase  string `yaml:"api_base,omitempty"`
	TokenRef string `yaml:"token_ref"`
}

// JiraNotifyConfig configures the Jira comment client.
type JiraNotifyConfig struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"email,omitempty"`
	TokenRef string `yaml:"token_ref"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "navvy",
			BotName:      "navvy",
			LogLevel:     "INFO",
			TickInterval: time.Second,
			LockPath:     "navvy.lock",
		},
		State: StateConfig{
			Path: "data/navvy.db",
		},
		Sessions: SessionsConfig{
			Dir:                "data/workspaces",
			MaxSessions:        20,
			PruneThresholdDays: 7,
			PruneIntervalDays:  1,
		},
		Assistant: AssistantConfig{
			Command: "claude",
			Model:   "default",
			Timeout: 15 * time.Minute,
			Grace:   10 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}

// Package config loads and validates relay configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HingolSingh/airelay/internal/router"
)

// ProviderConfig declares one AI backend.
type ProviderConfig struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"` // gemini | openai | anthropic
	APIKeyEnv    string   `yaml:"api_key_env"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url,omitempty"`
	Priority     int      `yaml:"priority"`
	Capabilities []string `yaml:"capabilities"`
	FreeTier     bool     `yaml:"free_tier"`
}

// Config is the full relay configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key,omitempty"`
	LogLevel   string `yaml:"log_level"`

	SystemPrompt  string `yaml:"system_prompt"`
	MaxMessageLen int    `yaml:"max_message_length"`
	MaxTokens     int    `yaml:"max_tokens"`

	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`
	WindowSeconds        int `yaml:"window_seconds"`

	HistoryLimitTurns int `yaml:"history_limit_turns"`
	HistoryLimitChars int `yaml:"history_limit_chars"`

	AttemptTimeoutMS int `yaml:"attempt_timeout_ms"`
	MaxRetries       int `yaml:"max_retries"`
	BackoffBaseMS    int `yaml:"backoff_base_ms"`

	UnhealthyThreshold int `yaml:"unhealthy_threshold"`
	CooldownSeconds    int `yaml:"cooldown_seconds"`

	MaxInFlight int64 `yaml:"max_in_flight"`

	DatabaseURL string `yaml:"database_url,omitempty"`

	Providers    []ProviderConfig `yaml:"providers"`
	RoutingRules []router.Rule    `yaml:"routing_rules,omitempty"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		SystemPrompt: "You are a helpful, friendly, and engaging conversational AI assistant. " +
			"Provide thoughtful, informative responses while maintaining a warm and approachable tone.",
		MaxMessageLen:        4000,
		MaxTokens:            1500,
		MaxRequestsPerWindow: 10,
		WindowSeconds:        60,
		HistoryLimitTurns:    20,
		HistoryLimitChars:    8000,
		AttemptTimeoutMS:     30000,
		MaxRetries:           3,
		BackoffBaseMS:        500,
		UnhealthyThreshold:   3,
		CooldownSeconds:      60,
		MaxInFlight:          64,
	}
}

// Load reads the config file, applies defaults, env overrides, and
// validates. path may be empty for env-only configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides select settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AIRELAY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AIRELAY_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("AIRELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AIRELAY_SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := envInt("AIRELAY_RATE_LIMIT_MESSAGES"); ok {
		cfg.MaxRequestsPerWindow = v
	}
	if v, ok := envInt("AIRELAY_RATE_LIMIT_WINDOW"); ok {
		cfg.WindowSeconds = v
	}
	if v, ok := envInt("AIRELAY_MAX_MESSAGE_LENGTH"); ok {
		cfg.MaxMessageLen = v
	}
	if v, ok := envInt("AIRELAY_HISTORY_LIMIT_TURNS"); ok {
		cfg.HistoryLimitTurns = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for misconfigurations that should
// surface at startup.
func (c *Config) Validate() error {
	if c.MaxRequestsPerWindow < 1 {
		return fmt.Errorf("config: max_requests_per_window must be >= 1")
	}
	if c.WindowSeconds < 1 {
		return fmt.Errorf("config: window_seconds must be >= 1")
	}
	if c.HistoryLimitTurns < 1 {
		return fmt.Errorf("config: history_limit_turns must be >= 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be >= 0")
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case "gemini", "openai", "anthropic":
		default:
			return fmt.Errorf("config: provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if len(p.Capabilities) == 0 {
			return fmt.Errorf("config: provider %q: at least one capability required", p.Name)
		}
	}
	return nil
}

// Window returns the rate limit window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutMS) * time.Millisecond
}

// BackoffBase returns the backoff base as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// Cooldown returns the circuit breaker cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

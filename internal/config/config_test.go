package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HingolSingh/airelay/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.MaxRequestsPerWindow != 10 {
			t.Errorf("MaxRequestsPerWindow = %d, want 10", cfg.MaxRequestsPerWindow)
		}
		if cfg.Window() != time.Minute {
			t.Errorf("Window() = %v, want 1m", cfg.Window())
		}
		if cfg.HistoryLimitTurns != 20 {
			t.Errorf("HistoryLimitTurns = %d, want 20", cfg.HistoryLimitTurns)
		}
		if cfg.BackoffBase() != 500*time.Millisecond {
			t.Errorf("BackoffBase() = %v, want 500ms", cfg.BackoffBase())
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
listen_addr: ":9090"
max_requests_per_window: 5
window_seconds: 30
history_limit_turns: 8
providers:
  - name: gemini
    kind: gemini
    api_key_env: GEMINI_API_KEY
    priority: 1
    capabilities: [text, vision]
  - name: fallback
    kind: openai
    api_key_env: OPENAI_API_KEY
    priority: 2
    capabilities: [text]
routing_rules:
  - when: capability == "vision"
    prefer: gemini
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.ListenAddr != ":9090" {
			t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
		}
		if cfg.MaxRequestsPerWindow != 5 || cfg.WindowSeconds != 30 {
			t.Errorf("rate limit = %d/%ds, want 5/30s", cfg.MaxRequestsPerWindow, cfg.WindowSeconds)
		}
		if len(cfg.Providers) != 2 {
			t.Fatalf("Providers = %d, want 2", len(cfg.Providers))
		}
		if cfg.Providers[0].Capabilities[1] != "vision" {
			t.Errorf("capabilities = %v, want [text vision]", cfg.Providers[0].Capabilities)
		}
		if len(cfg.RoutingRules) != 1 || cfg.RoutingRules[0].Prefer != "gemini" {
			t.Errorf("RoutingRules = %+v, want one rule preferring gemini", cfg.RoutingRules)
		}
		// Unset fields keep their defaults.
		if cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, want default 3", cfg.MaxRetries)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, "max_requests_per_window: 5\n")
		t.Setenv("AIRELAY_RATE_LIMIT_MESSAGES", "42")
		t.Setenv("AIRELAY_API_KEY", "secret")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.MaxRequestsPerWindow != 42 {
			t.Errorf("MaxRequestsPerWindow = %d, want 42 from env", cfg.MaxRequestsPerWindow)
		}
		if cfg.APIKey != "secret" {
			t.Errorf("APIKey = %q, want env value", cfg.APIKey)
		}
	})

	t.Run("invalid env values ignored", func(t *testing.T) {
		t.Setenv("AIRELAY_RATE_LIMIT_MESSAGES", "not-a-number")
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.MaxRequestsPerWindow != 10 {
			t.Errorf("MaxRequestsPerWindow = %d, want default 10", cfg.MaxRequestsPerWindow)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yaml")
		testutil.AssertErrorContains(t, err, "read config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "listen_addr: [unclosed\n")
		if _, err := Load(path); err == nil {
			t.Error("Load() with malformed yaml succeeded, want error")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Providers = []ProviderConfig{{
			Name:         "gemini",
			Kind:         "gemini",
			Capabilities: []string{"text"},
		}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero rate limit", func(c *Config) { c.MaxRequestsPerWindow = 0 }, true},
		{"zero window", func(c *Config) { c.WindowSeconds = 0 }, true},
		{"zero history turns", func(c *Config) { c.HistoryLimitTurns = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"provider without name", func(c *Config) { c.Providers[0].Name = "" }, true},
		{"unknown provider kind", func(c *Config) { c.Providers[0].Kind = "cohere" }, true},
		{"provider without capabilities", func(c *Config) { c.Providers[0].Capabilities = nil }, true},
		{"duplicate providers", func(c *Config) {
			c.Providers = append(c.Providers, c.Providers[0])
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

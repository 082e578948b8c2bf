package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/HingolSingh/airelay/internal/analytics"
	"github.com/HingolSingh/airelay/internal/config"
	"github.com/HingolSingh/airelay/internal/dispatch"
	"github.com/HingolSingh/airelay/internal/history"
	"github.com/HingolSingh/airelay/internal/llm"
	"github.com/HingolSingh/airelay/internal/ratelimit"
	"github.com/HingolSingh/airelay/internal/router"
	"github.com/HingolSingh/airelay/internal/telemetry"
)

// relay bundles the wired core for the CLI commands.
type relay struct {
	engine   *dispatch.Engine
	limiter  *ratelimit.Limiter
	router   *router.Router
	store    *history.SlidingStore
	metrics  *telemetry.Metrics
	recorder *analytics.Recorder
	stats    *analytics.MemorySink
	logger   *slog.Logger
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level)
}

// buildClient constructs the adapter for one provider declaration. The API
// key is read from the configured environment variable so credentials stay
// out of the config file.
func buildClient(p config.ProviderConfig) (llm.Client, error) {
	apiKey := os.Getenv(p.APIKeyEnv)
	switch p.Kind {
	case "gemini":
		var opts []llm.GeminiOption
		if p.BaseURL != "" {
			opts = append(opts, llm.WithGeminiBaseURL(p.BaseURL))
		}
		return llm.NewGeminiClient(apiKey, p.Model, opts...), nil
	case "openai":
		var opts []llm.OpenAIOption
		if p.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(p.BaseURL))
		}
		return llm.NewOpenAIClient(apiKey, p.Model, opts...), nil
	case "anthropic":
		return llm.NewAnthropicClient(apiKey, p.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}

// buildRelay wires the full core from configuration. withSinks enables the
// analytics recorder (the one-shot chat command runs without it).
func buildRelay(cfg *config.Config, logger *slog.Logger, withSinks bool) (*relay, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	registry := router.NewRegistry()
	for _, p := range cfg.Providers {
		client, err := buildClient(p)
		if err != nil {
			return nil, err
		}
		caps := make(map[llm.Capability]bool, len(p.Capabilities))
		for _, c := range p.Capabilities {
			capability, ok := llm.ParseCapability(c)
			if !ok {
				return nil, fmt.Errorf("provider %q: unknown capability %q", p.Name, c)
			}
			caps[capability] = true
		}
		err = registry.Register(&router.Descriptor{
			Name:         p.Name,
			Client:       client,
			Capabilities: caps,
			Priority:     p.Priority,
			FreeTier:     p.FreeTier,
		})
		if err != nil {
			return nil, err
		}
	}

	rules, err := router.CompileRules(cfg.RoutingRules, registry, logger)
	if err != nil {
		return nil, err
	}

	rt := router.New(registry, cfg.UnhealthyThreshold, cfg.Cooldown(), router.WithRules(rules))
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.MaxRequestsPerWindow,
		Window:      cfg.Window(),
	})
	store := history.NewSlidingStore(cfg.HistoryLimitTurns, cfg.HistoryLimitChars)
	metrics := telemetry.NewMetrics(store.Len)

	controller := dispatch.NewController(dispatch.ControllerConfig{
		AttemptTimeout: cfg.AttemptTimeout(),
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase(),
	}, dispatch.WithControllerLogger(logger), dispatch.WithControllerMetrics(metrics))

	engineOpts := []dispatch.EngineOption{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
	}

	r := &relay{
		limiter: limiter,
		router:  rt,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}

	if withSinks {
		r.stats = analytics.NewMemorySink(0)
		sinks := []analytics.Sink{r.stats}
		if cfg.DatabaseURL != "" {
			pg, err := analytics.NewPostgresSink(context.Background(), cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, pg)
		}
		r.recorder = analytics.NewRecorder(logger, 0, sinks...)
		engineOpts = append(engineOpts, dispatch.WithRecorder(r.recorder))
	}

	r.engine = dispatch.NewEngine(dispatch.EngineConfig{
		SystemPrompt:  cfg.SystemPrompt,
		MaxMessageLen: cfg.MaxMessageLen,
		MaxTokens:     cfg.MaxTokens,
		MaxInFlight:   cfg.MaxInFlight,
	}, limiter, store, rt, controller, engineOpts...)

	return r, nil
}

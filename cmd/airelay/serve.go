package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/HingolSingh/airelay/internal/config"
	"github.com/HingolSingh/airelay/internal/ratelimit"
	"github.com/HingolSingh/airelay/internal/router"
	"github.com/HingolSingh/airelay/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}

			logger := newLogger(cfg)
			r, err := buildRelay(cfg, logger, true)
			if err != nil {
				return err
			}

			srv := server.New(r.engine,
				server.WithLogger(logger),
				server.WithAPIKey(cfg.APIKey),
				server.WithStats(r.stats),
				server.WithMetricsHandler(r.metrics.Handler()),
			)

			// Idle rate-limit buckets are garbage collected on a
			// schedule; ten quiet windows is long past any retry hint.
			sweeper := cron.New()
			maxIdle := 10 * cfg.Window()
			_, err = sweeper.AddFunc("@every 10m", func() {
				if n := r.limiter.EvictIdle(maxIdle); n > 0 {
					logger.Debug("evicted idle rate-limit buckets", "count", n)
				}
			})
			if err != nil {
				return fmt.Errorf("schedule bucket sweeper: %w", err)
			}
			sweeper.Start()
			defer sweeper.Stop()

			if watch && configPath != "" {
				stop, err := config.Watch(configPath, logger, func(next *config.Config) {
					applyDynamic(r, next, logger)
				})
				if err != nil {
					return err
				}
				defer stop()
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("server shutdown", "error", err)
			}
			if r.recorder != nil {
				if err := r.recorder.Close(ctx); err != nil {
					logger.Warn("analytics shutdown", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "Reload dynamic settings on config file change")

	return cmd
}

// applyDynamic re-applies the settings that can change without a restart:
// rate limits and routing rules. Provider topology changes need a restart.
func applyDynamic(r *relay, next *config.Config, logger *slog.Logger) {
	r.limiter.SetLimits(ratelimit.Config{
		MaxRequests: next.MaxRequestsPerWindow,
		Window:      next.Window(),
	})
	rules, err := router.CompileRules(next.RoutingRules, r.router.Registry(), r.logger)
	if err != nil {
		logger.Warn("keeping previous routing rules", "error", err)
		return
	}
	r.router.SetRules(rules)
}

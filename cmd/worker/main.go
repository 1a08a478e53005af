// Command worker relays billing events from the outbox table to RabbitMQ
// and prunes published rows past the retention window.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/saffron/internal/app"
	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/saffron/pkg/config"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.ConfigForEnvironment(cfg.AppEnv, cfg.LogLevel))

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	relay := container.OutboxProcessor
	logger.Info("worker starting",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)
	if err := relay.Start(ctx); err != nil {
		return err
	}
	defer relay.Stop()

	go every(ctx, cfg.OutboxCleanupInterval, func() { prune(ctx, container.OutboxRepo, cfg.OutboxRetentionDays, logger) })
	go every(ctx, cfg.OutboxStatsInterval, func() { logStats(ctx, relay.GetStats(), logger) })

	if cfg.WorkerHealthAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthRouter(relay, container.Health),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("health server listening", "addr", cfg.WorkerHealthAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}

// every calls fn on each tick of interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

func prune(ctx context.Context, repo outbox.Repository, retentionDays int, logger *slog.Logger) {
	deleted, err := repo.DeleteOld(ctx, retentionDays)
	switch {
	case err != nil:
		logger.Error("outbox prune failed", "error", err)
	case deleted > 0:
		logger.Info("outbox pruned", "deleted", deleted, "retention_days", retentionDays)
	}
}

func logStats(ctx context.Context, s outbox.Stats, logger *slog.Logger) {
	logger.InfoContext(ctx, "outbox stats",
		"published", s.PublishedCount,
		"failed", s.FailedCount,
		"dead", s.DeadCount,
		"deferred", s.DeferredCount,
		"broker", s.BrokerState,
		"lag_seconds", s.LagSeconds,
	)
}

// Command worker runs the feed monitor: periodic fetch, scrape and
// reconcile triggers, the job dispatcher and the operator HTTP API.
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

	"golang.org/x/sync/errgroup"

	"feed-monitor/internal/infra/db"
	workerPkg "feed-monitor/internal/infra/worker"
	"feed-monitor/internal/observability/logging"
	"feed-monitor/internal/observability/tracing"
	"feed-monitor/internal/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Setup(traceSampleRatio(logger))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}()

	// Fail-open: invalid values fall back to defaults and are logged.
	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("schedule_cron", cfg.ScheduleCron),
		slog.String("scrape_schedule_cron", cfg.ScrapeScheduleCron),
		slog.String("reconcile_cron", cfg.ReconcileCron),
		slog.String("timezone", cfg.Timezone),
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("lock_backend", cfg.LockBackend),
		slog.Int("http_port", cfg.HTTPPort))

	if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
		return err
	}
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	app, err := build(ctx, cfg, database, workerMetrics, logger)
	if err != nil {
		return err
	}
	defer app.close()

	scheduler, err := startTriggers(ctx, cfg, app, workerMetrics, logger)
	if err != nil {
		return err
	}

	server := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HTTPPort), app.admin, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return app.dispatcher.Run(gctx) })
	g.Go(func() error {
		reportPoolStats(gctx, database, app.sources, logger)
		return nil
	})

	server.SetReady(true)
	logger.Info("worker started", slog.String("worker_id", app.dispatcher.WorkerID()))

	err = g.Wait()

	server.SetReady(false)
	logger.Info("waiting for running triggers to finish")
	<-scheduler.Stop().Done()
	logger.Info("worker stopped")
	return err
}

// traceSampleRatio reads TRACE_SAMPLE_RATIO, a fraction in [0, 1]. Default 0.1.
func traceSampleRatio(logger *slog.Logger) float64 {
	res := config.Float("TRACE_SAMPLE_RATIO", 0.1, config.FloatRange(0, 1))
	if res.FallbackApplied {
		logger.Warn("Configuration fallback applied",
			slog.String("field", "trace_sample_ratio"),
			slog.String("warning", res.Warning))
	}
	return res.Value
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	workerPkg "feed-monitor/internal/infra/worker"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
)

// triggerTimeout bounds a single scheduler or reconciler run.
const triggerTimeout = 2 * time.Minute

type batchRunner interface {
	Run(ctx context.Context, limit int) (int, error)
}

// startTriggers registers the periodic runs on a cron scheduler in the
// configured timezone and starts it. Overlapping runs of the same trigger
// are skipped.
func startTriggers(ctx context.Context, cfg *workerPkg.WorkerConfig, a *app, workerMetrics *workerPkg.WorkerMetrics, logger *slog.Logger) (*cron.Cron, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	triggers := []struct {
		name     string
		schedule string
		runner   batchRunner
		limit    int
	}{
		{workerPkg.TriggerFetchScheduler, cfg.ScheduleCron, a.fetchScheduler, cfg.SchedulerBatchSize},
		{workerPkg.TriggerScrapeScheduler, cfg.ScrapeScheduleCron, a.scrapeScheduler, cfg.ScrapeBatchSize},
		{workerPkg.TriggerReconciler, cfg.ReconcileCron, a.reconciler, cfg.SchedulerBatchSize},
		{workerPkg.TriggerScrapeReconciler, cfg.ReconcileCron, a.scrapeReconciler, cfg.ScrapeBatchSize},
	}
	for _, t := range triggers {
		job := triggerJob(ctx, t.name, t.runner, t.limit, workerMetrics, logger)
		if _, err := c.AddFunc(t.schedule, job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", t.name, err)
		}
		logger.Info("trigger scheduled",
			slog.String("trigger", t.name),
			slog.String("schedule", t.schedule),
			slog.Int("limit", t.limit))
	}

	c.Start()
	return c, nil
}

func triggerJob(ctx context.Context, name string, runner batchRunner, limit int, workerMetrics *workerPkg.WorkerMetrics, logger *slog.Logger) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, triggerTimeout)
		defer cancel()

		start := time.Now()
		count, err := runner.Run(runCtx, limit)
		duration := time.Since(start)
		workerMetrics.RecordTriggerRun(name, count, duration, err)

		if err != nil {
			logger.Error("trigger run failed",
				slog.String("trigger", name),
				slog.Duration("duration", duration),
				slog.Any("error", err))
			return
		}
		logger.Info("trigger run completed",
			slog.String("trigger", name),
			slog.Int("count", count),
			slog.Duration("duration", duration))
	}
}

// reportPoolStats refreshes the connection pool and active source gauges
// until ctx is cancelled.
func reportPoolStats(ctx context.Context, database *sql.DB, sources repository.SourceRepository, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		stats := database.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)

		if active, err := sources.ListActive(ctx); err == nil {
			metrics.UpdateSourcesTotal(len(active))
		} else if ctx.Err() == nil {
			logger.Warn("failed to count active sources", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

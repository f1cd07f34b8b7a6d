package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	policyConfig "feed-monitor/internal/config"
	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/handler/http/admin"
	natsAdapter "feed-monitor/internal/infra/adapter/nats"
	pgRepo "feed-monitor/internal/infra/adapter/persistence/postgres"
	"feed-monitor/internal/infra/fetcher"
	"feed-monitor/internal/infra/scraper"
	workerPkg "feed-monitor/internal/infra/worker"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/resilience/lock"
	"feed-monitor/internal/usecase/events"
	fetchUC "feed-monitor/internal/usecase/fetch"
	healthUC "feed-monitor/internal/usecase/health"
	"feed-monitor/internal/usecase/scraping"
)

// app holds the wired components the process runs.
type app struct {
	sources          repository.SourceRepository
	fetchRunner      *fetchUC.Runner
	fetchScheduler   *fetchUC.Scheduler
	reconciler       *fetchUC.Reconciler
	scrapeScheduler  *scraping.Scheduler
	scrapeReconciler *scraping.Reconciler
	dispatcher       *workerPkg.Dispatcher
	admin            http.Handler
	nc               *natsgo.Conn
}

func (a *app) close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			slog.Warn("failed to drain NATS connection", slog.Any("error", err))
		}
	}
}

func build(ctx context.Context, cfg *workerPkg.WorkerConfig, database *sql.DB, workerMetrics *workerPkg.WorkerMetrics, logger *slog.Logger) (*app, error) {
	policy, err := policyConfig.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	retryTable, err := policy.RetryTable()
	if err != nil {
		return nil, err
	}
	healthCfg, err := policy.HealthConfig()
	if err != nil {
		return nil, err
	}

	a := &app{}
	sources := pgRepo.NewSourceRepo(database)
	items := pgRepo.NewItemRepo(database)
	jobs := pgRepo.NewJobQueue(database)
	a.sources = sources

	var js jetstream.JetStream
	if cfg.NeedsNATS() {
		nc, stream, err := natsAdapter.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		a.nc, js = nc, stream
		logger.Info("connected to NATS", slog.String("url", cfg.NATSURL))
	}

	locker, err := buildLocker(ctx, cfg, database, js, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	bus := events.NewBus(logger)
	bus.Register(healthUC.NewMonitor(sources, healthCfg, logger))
	bus.Register(metrics.NewInstrumentation())
	if cfg.EventsBroadcast {
		bus.Register(natsAdapter.NewBroadcaster(a.nc))
		logger.Info("broadcasting pipeline events on NATS")
	}

	fetchCfg, warnings := fetcher.LoadConfigFromEnv()
	for _, w := range warnings {
		logger.Warn("fetcher configuration fallback applied", slog.String("warning", w))
	}
	client := fetcher.NewHTTPClient(fetchCfg)
	reader := scraper.NewFeedReader(client, fetchCfg.UserAgent, fetchCfg.MaxBodySize)
	ingester := fetchUC.NewIngester(reader, fetchUC.NewRepositoryItemCreator(items, bus, logger))

	state := scraping.NewState(items, bus)
	scrapeEnqueuer := scraping.NewEnqueuer(items, state, jobs, logger)
	scrapeRunner := scraping.NewRunner(items, state, fetcher.NewReadabilityScraper(fetchCfg, logger), bus, logger)

	a.fetchRunner = fetchUC.NewRunner(fetchUC.RunnerDeps{
		Sources:   sources,
		Jobs:      jobs,
		Locker:    locker,
		Fetcher:   ingester,
		Policy:    fetchUC.NewPolicy(retryTable),
		Bus:       bus,
		Retention: fetchUC.NewItemRetention(items),
		Scrapes:   scrapeEnqueuer,
		Logger:    logger,
	})
	a.fetchScheduler = fetchUC.NewScheduler(sources, a.fetchRunner, logger)
	a.reconciler = fetchUC.NewReconciler(sources, locker, a.fetchRunner, cfg.StalledFetchAfter, logger)
	a.scrapeScheduler = scraping.NewScheduler(items, sources, scrapeEnqueuer, logger)
	a.scrapeReconciler = scraping.NewReconciler(items, sources, state, scrapeEnqueuer, cfg.StalledFetchAfter, logger)

	a.dispatcher = workerPkg.NewDispatcher(jobs, workerPkg.DispatcherConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.JobMaxAttempts,
		StaleAfter:   cfg.StalledFetchAfter,
	}, workerMetrics, logger)
	a.dispatcher.Handle(entity.JobKindFetchSource, a.fetchRunner)
	a.dispatcher.Handle(entity.JobKindScrapeItem, scrapeRunner)

	a.admin = admin.NewRouter(admin.Deps{
		Sources:          sources,
		Fetches:          a.fetchRunner,
		HealthReset:      healthUC.NewReset(sources, logger),
		FetchScheduler:   a.fetchScheduler,
		ScrapeScheduler:  a.scrapeScheduler,
		Reconciler:       a.reconciler,
		ScrapeReconciler: a.scrapeReconciler,
		DefaultLimit:     cfg.SchedulerBatchSize,
		Logger:           logger,
	})
	return a, nil
}

// buildLocker selects the advisory lock backend. js is nil unless NATS is configured.
func buildLocker(ctx context.Context, cfg *workerPkg.WorkerConfig, database *sql.DB, js jetstream.JetStream, logger *slog.Logger) (lock.Locker, error) {
	switch cfg.LockBackend {
	case workerPkg.LockBackendPostgres:
		return pgRepo.NewAdvisoryLocker(database, logger), nil
	case workerPkg.LockBackendMemory:
		logger.Warn("using in-process locks; do not run more than one worker")
		return lock.NewMemoryLocker(), nil
	case workerPkg.LockBackendNATS:
		// Keys left by a crashed holder expire once the reconciler would
		// consider the fetch stalled anyway.
		kv, err := natsAdapter.OpenLockBucket(ctx, js, cfg.StalledFetchAfter)
		if err != nil {
			return nil, err
		}
		return natsAdapter.NewKVLocker(kv, logger), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

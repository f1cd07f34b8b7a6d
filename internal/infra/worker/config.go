package worker

import (
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/pkg/config"
)

// Lock backends accepted by LOCK_BACKEND.
const (
	LockBackendPostgres = "postgres"
	LockBackendNATS     = "nats"
	LockBackendMemory   = "memory"
)

// WorkerConfig holds the configuration of the monitor worker process.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Every field except DatabaseURL has a usable default, and invalid values
// fall back to that default instead of failing startup.
type WorkerConfig struct {
	// DatabaseURL is the postgres:// connection URL. Required.
	DatabaseURL string

	// ScheduleCron triggers the fetch Scheduler.
	// Default: "*/5 * * * *"
	ScheduleCron string

	// ScrapeScheduleCron triggers the scraping Scheduler.
	// Default: "*/10 * * * *"
	ScrapeScheduleCron string

	// ReconcileCron triggers the stalled fetch reconciler.
	// Default: "*/15 * * * *"
	ReconcileCron string

	// Timezone is the IANA timezone the cron expressions are evaluated in.
	// Default: "UTC"
	Timezone string

	// SchedulerBatchSize caps the sources enqueued per Scheduler run.
	// Range: 1-10000, Default: 100
	SchedulerBatchSize int

	// ScrapeBatchSize caps the items considered per scraping Scheduler run.
	// Range: 1-10000, Default: 50
	ScrapeBatchSize int

	// WorkerConcurrency is the number of jobs executed in parallel.
	// Range: 1-64, Default: 4
	WorkerConcurrency int

	// PollInterval is how long the dispatcher sleeps when the queue is empty.
	// Range: 100ms-1m, Default: 2s
	PollInterval time.Duration

	// JobMaxAttempts is the number of times a failing job runs before it is
	// marked permanently failed.
	// Range: 1-50, Default: 5
	JobMaxAttempts int

	// StalledFetchAfter is how long a source may stay in "fetching" before
	// the reconciler resets it.
	// Range: 1m-24h, Default: 15m
	StalledFetchAfter time.Duration

	// LockBackend selects the per-source lock implementation.
	// One of "postgres", "nats", "memory". Default: "postgres"
	LockBackend string

	// NATSURL is used when LockBackend is "nats" or EventsBroadcast is set.
	// Default: "nats://127.0.0.1:4222"
	NATSURL string

	// EventsBroadcast republishes domain events on NATS subjects.
	// Default: false
	EventsBroadcast bool

	// HTTPPort serves health probes, /metrics and the admin API.
	// Range: 1024-65535, Default: 9091
	HTTPPort int

	// PolicyFile is an optional YAML file overriding the retry table and
	// health thresholds.
	PolicyFile string
}

// DefaultConfig returns a WorkerConfig with default values.
// DatabaseURL is left empty.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		ScheduleCron:       "*/5 * * * *",
		ScrapeScheduleCron: "*/10 * * * *",
		ReconcileCron:      "*/15 * * * *",
		Timezone:           "UTC",
		SchedulerBatchSize: 100,
		ScrapeBatchSize:    50,
		WorkerConcurrency:  4,
		PollInterval:       2 * time.Second,
		JobMaxAttempts:     5,
		StalledFetchAfter:  15 * time.Minute,
		LockBackend:        LockBackendPostgres,
		NATSURL:            "nats://127.0.0.1:4222",
		HTTPPort:           9091,
	}
}

// ValidateLockBackend accepts the names of the supported lock backends.
func ValidateLockBackend(backend string) error {
	switch backend {
	case LockBackendPostgres, LockBackendNATS, LockBackendMemory:
		return nil
	default:
		return fmt.Errorf("invalid lock backend %q: must be postgres, nats or memory", backend)
	}
}

// Validate checks every field and returns all problems at once.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if c.DatabaseURL == "" {
		errors = append(errors, fmt.Errorf("database url: must be set"))
	}
	for name, expr := range map[string]string{
		"schedule cron":        c.ScheduleCron,
		"scrape schedule cron": c.ScrapeScheduleCron,
		"reconcile cron":       c.ReconcileCron,
	} {
		if err := config.ValidateCronSchedule(expr); err != nil {
			errors = append(errors, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.SchedulerBatchSize, 1, 10000); err != nil {
		errors = append(errors, fmt.Errorf("scheduler batch size: %w", err))
	}
	if err := config.ValidateIntRange(c.ScrapeBatchSize, 1, 10000); err != nil {
		errors = append(errors, fmt.Errorf("scrape batch size: %w", err))
	}
	if err := config.ValidateIntRange(c.WorkerConcurrency, 1, 64); err != nil {
		errors = append(errors, fmt.Errorf("worker concurrency: %w", err))
	}
	if err := config.ValidateDuration(c.PollInterval, 100*time.Millisecond, time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("poll interval: %w", err))
	}
	if err := config.ValidateIntRange(c.JobMaxAttempts, 1, 50); err != nil {
		errors = append(errors, fmt.Errorf("job max attempts: %w", err))
	}
	if err := config.ValidateDuration(c.StalledFetchAfter, time.Minute, 24*time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("stalled fetch after: %w", err))
	}
	if err := ValidateLockBackend(c.LockBackend); err != nil {
		errors = append(errors, fmt.Errorf("lock backend: %w", err))
	}
	if err := config.ValidateIntRange(c.HTTPPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("http port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}
	return nil
}

// NeedsNATS reports whether the configuration requires a NATS connection.
func (c *WorkerConfig) NeedsNATS() bool {
	return c.LockBackend == LockBackendNATS || c.EventsBroadcast
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables. Invalid values fall back to the defaults of DefaultConfig,
// are logged as warnings and are counted in metrics; the returned error is
// always nil.
//
// Environment variables:
//   - DATABASE_URL
//   - SCHEDULE_CRON, SCRAPE_SCHEDULE_CRON, RECONCILE_CRON, WORKER_TIMEZONE
//   - SCHEDULER_BATCH_SIZE, SCRAPE_BATCH_SIZE
//   - WORKER_CONCURRENCY, WORKER_POLL_INTERVAL, JOB_MAX_ATTEMPTS
//   - STALLED_FETCH_AFTER
//   - LOCK_BACKEND, NATS_URL, EVENTS_BROADCAST
//   - HTTP_PORT, POLICY_FILE
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	rec := config.NewRecorder(logger, cm)
	cfg := DefaultConfig()

	cfg.DatabaseURL = config.Lookup("DATABASE_URL", "")
	cfg.NATSURL = config.Lookup("NATS_URL", cfg.NATSURL)
	cfg.PolicyFile = config.Lookup("POLICY_FILE", "")

	cfg.ScheduleCron = config.Apply(rec, "schedule_cron",
		config.String("SCHEDULE_CRON", cfg.ScheduleCron, config.ValidateCronSchedule))
	cfg.ScrapeScheduleCron = config.Apply(rec, "scrape_schedule_cron",
		config.String("SCRAPE_SCHEDULE_CRON", cfg.ScrapeScheduleCron, config.ValidateCronSchedule))
	cfg.ReconcileCron = config.Apply(rec, "reconcile_cron",
		config.String("RECONCILE_CRON", cfg.ReconcileCron, config.ValidateCronSchedule))
	cfg.Timezone = config.Apply(rec, "timezone",
		config.String("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.LockBackend = config.Apply(rec, "lock_backend",
		config.String("LOCK_BACKEND", cfg.LockBackend, ValidateLockBackend))

	cfg.SchedulerBatchSize = config.Apply(rec, "scheduler_batch_size",
		config.Int("SCHEDULER_BATCH_SIZE", cfg.SchedulerBatchSize, config.IntRange(1, 10000)))
	cfg.ScrapeBatchSize = config.Apply(rec, "scrape_batch_size",
		config.Int("SCRAPE_BATCH_SIZE", cfg.ScrapeBatchSize, config.IntRange(1, 10000)))
	cfg.WorkerConcurrency = config.Apply(rec, "worker_concurrency",
		config.Int("WORKER_CONCURRENCY", cfg.WorkerConcurrency, config.IntRange(1, 64)))
	cfg.JobMaxAttempts = config.Apply(rec, "job_max_attempts",
		config.Int("JOB_MAX_ATTEMPTS", cfg.JobMaxAttempts, config.IntRange(1, 50)))
	cfg.HTTPPort = config.Apply(rec, "http_port",
		config.Int("HTTP_PORT", cfg.HTTPPort, config.IntRange(1024, 65535)))

	cfg.PollInterval = config.Apply(rec, "poll_interval",
		config.Duration("WORKER_POLL_INTERVAL", cfg.PollInterval, config.DurationRange(100*time.Millisecond, time.Minute)))
	cfg.StalledFetchAfter = config.Apply(rec, "stalled_fetch_after",
		config.Duration("STALLED_FETCH_AFTER", cfg.StalledFetchAfter, config.DurationRange(time.Minute, 24*time.Hour)))

	cfg.EventsBroadcast = config.Apply(rec, "events_broadcast",
		config.Bool("EVENTS_BROADCAST", cfg.EventsBroadcast))

	rec.Done()
	return &cfg, nil
}

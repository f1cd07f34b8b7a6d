package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/resilience/retry"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// JobHandler executes one claimed job. A returned error makes the
// dispatcher reschedule the job, or fail it once attempts are exhausted.
type JobHandler interface {
	HandleJob(ctx context.Context, job *entity.Job) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job *entity.Job) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, job *entity.Job) error { return f(ctx, job) }

// DispatcherConfig tunes the dispatch loop.
type DispatcherConfig struct {
	WorkerID     string
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int

	// StaleAfter is how long a job may stay locked before another worker
	// may claim it again.
	StaleAfter time.Duration

	// RetryBase and RetryMax bound the exponential delay between attempts
	// of a failing job.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Minute
	}
	return c
}

// Dispatcher claims jobs from a JobQueue and runs them through the handler
// registered for their kind, at most Concurrency at a time.
type Dispatcher struct {
	queue    repository.JobQueue
	handlers map[entity.JobKind]JobHandler
	cfg      DispatcherConfig
	metrics  *WorkerMetrics
	logger   *slog.Logger
	now      func() time.Time
	dbRetry  retry.Config
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(queue repository.JobQueue, cfg DispatcherConfig, workerMetrics *WorkerMetrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		queue:    queue,
		handlers: make(map[entity.JobKind]JobHandler),
		cfg:      cfg,
		metrics:  workerMetrics,
		logger:   logger.With(slog.String("worker_id", cfg.WorkerID)),
		now:      time.Now,
		dbRetry:  retry.DBConfig(),
	}
}

// WithClock overrides the time source; for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Handle registers h for jobs of kind. It must be called before Run.
func (d *Dispatcher) Handle(kind entity.JobKind, h JobHandler) {
	d.handlers[kind] = h
}

// WorkerID returns the identity this dispatcher claims jobs under.
func (d *Dispatcher) WorkerID() string { return d.cfg.WorkerID }

// Run claims and runs jobs until ctx is cancelled, then waits for running
// jobs to finish. A job is claimed as soon as a slot frees up, so one slow
// job never holds back the others. A poll that finds fewer jobs than free
// slots, or fails, waits PollInterval.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		slog.Int("concurrency", d.cfg.Concurrency),
		slog.Duration("poll_interval", d.cfg.PollInterval))

	slots := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	var running errgroup.Group

	lastRelease := time.Time{}
	for ctx.Err() == nil {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		free := 1
		for free < d.cfg.Concurrency && slots.TryAcquire(1) {
			free++
		}

		if d.now().Sub(lastRelease) >= d.cfg.StaleAfter/2 {
			d.releaseStale(ctx)
			lastRelease = d.now()
		}

		jobs, err := d.queue.Claim(ctx, d.cfg.WorkerID, d.now(), free)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("job poll failed", slog.Any("error", err))
		}
		if unused := free - len(jobs); unused > 0 {
			slots.Release(int64(unused))
		}
		for _, job := range jobs {
			running.Go(func() error {
				defer slots.Release(1)
				d.process(ctx, job)
				return nil
			})
		}
		if err == nil && len(jobs) == free {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(d.cfg.PollInterval):
		}
	}

	_ = running.Wait()
	d.logger.Info("dispatcher stopped")
	return nil
}

// Poll claims one batch of up to Concurrency runnable jobs, runs them and
// waits for the batch to finish. It returns the number of jobs claimed.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	jobs, err := d.queue.Claim(ctx, d.cfg.WorkerID, d.now(), d.cfg.Concurrency)
	if err != nil {
		return 0, fmt.Errorf("Poll: claim: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			d.process(gctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

func (d *Dispatcher) process(ctx context.Context, job *entity.Job) {
	start := d.now()
	d.metrics.AddJobsInFlight(1)
	defer d.metrics.AddJobsInFlight(-1)

	logger := d.logger.With(
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Int("attempt", job.Attempts))

	handler, ok := d.handlers[job.Kind]
	if !ok {
		logger.Error("no handler registered for job kind")
		d.settle(ctx, logger, job, fmt.Errorf("no handler for job kind %q", job.Kind), true)
		metrics.RecordJobProcessed(string(job.Kind), "failed", d.now().Sub(start))
		return
	}

	err := d.invoke(ctx, handler, job)
	switch {
	case err == nil:
		d.complete(ctx, logger, job)
		metrics.RecordJobProcessed(string(job.Kind), "success", d.now().Sub(start))
	case ctx.Err() != nil:
		logger.Warn("job interrupted by shutdown", slog.Any("error", err))
		d.release(ctx, logger, job, err)
		metrics.RecordJobProcessed(string(job.Kind), "interrupted", d.now().Sub(start))
	default:
		final := job.Attempts >= d.cfg.MaxAttempts
		d.settle(ctx, logger, job, err, final)
		result := "retry"
		if final {
			result = "failed"
		}
		metrics.RecordJobProcessed(string(job.Kind), result, d.now().Sub(start))
	}
}

// invoke runs the handler, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h JobHandler, job *entity.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h.HandleJob(ctx, job)
}

// bookkeeping returns a context that outlives shutdown long enough to record
// the outcome of a job that already ran.
func bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (d *Dispatcher) complete(ctx context.Context, logger *slog.Logger, job *entity.Job) {
	bctx, cancel := bookkeeping(ctx)
	defer cancel()
	if err := retry.WithBackoff(bctx, d.dbRetry, func() error {
		return d.queue.Complete(bctx, job.ID)
	}); err != nil {
		logger.Error("failed to complete job", slog.Any("error", err))
	}
}

// settle records a failed attempt. A final failure is kept for inspection;
// otherwise the job is rescheduled with exponential backoff.
func (d *Dispatcher) settle(ctx context.Context, logger *slog.Logger, job *entity.Job, cause error, final bool) {
	var retryAt *time.Time
	if !final {
		at := d.now().Add(d.Backoff(job.Attempts))
		retryAt = &at
		logger.Warn("job failed, rescheduling",
			slog.Time("retry_at", at),
			slog.Any("error", cause))
	} else {
		logger.Error("job failed permanently", slog.Any("error", cause))
	}
	d.fail(ctx, logger, job, cause, retryAt)
}

// release gives an interrupted job back to the queue without delay.
func (d *Dispatcher) release(ctx context.Context, logger *slog.Logger, job *entity.Job, cause error) {
	at := d.now()
	d.fail(ctx, logger, job, cause, &at)
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, job *entity.Job, cause error, retryAt *time.Time) {
	bctx, cancel := bookkeeping(ctx)
	defer cancel()
	if err := retry.WithBackoff(bctx, d.dbRetry, func() error {
		return d.queue.Fail(bctx, job.ID, cause.Error(), retryAt)
	}); err != nil {
		logger.Error("failed to record job failure", slog.Any("error", err))
	}
}

// Backoff returns the delay before the next run of a job that failed on
// its attempt-th run.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.RetryMax {
			return d.cfg.RetryMax
		}
	}
	return delay
}

func (d *Dispatcher) releaseStale(ctx context.Context) {
	n, err := d.queue.ReleaseStale(ctx, d.now().Add(-d.cfg.StaleAfter))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("failed to release stale jobs", slog.Any("error", err))
		}
		return
	}
	if n > 0 {
		d.metrics.RecordJobsReleased(n)
		d.logger.Info("released stale jobs", slog.Int64("count", n))
	}
}

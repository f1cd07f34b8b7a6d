package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/observability/tracing"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/resilience/lock"
	"feed-monitor/internal/usecase/events"
)

// maxLastErrorLen bounds the error message stored on the source row.
const maxLastErrorLen = 1000

// Fetcher downloads and ingests one source's feed.
//
// Ordinary HTTP, network and parse failures are reported through
// FetchResult.Err with Outcome failed. A returned error means something the
// retry policy cannot reason about (programmer or storage error).
type Fetcher interface {
	Fetch(ctx context.Context, src *entity.Source) (*entity.FetchResult, error)
}

// RetentionPruner removes old items of a source after a fetch.
type RetentionPruner interface {
	Prune(ctx context.Context, src *entity.Source, strategy entity.RetentionStrategy) (int64, error)
}

// ScrapeEnqueuer queues a scrape of a newly created item.
// It must be idempotent against items already queued.
type ScrapeEnqueuer interface {
	Enqueue(ctx context.Context, item *entity.Item, src *entity.Source, reason string) (bool, error)
}

// RunnerDeps holds the collaborators of a Runner.
// Retention and Scrapes are optional.
type RunnerDeps struct {
	Sources   repository.SourceRepository
	Jobs      repository.JobQueue
	Locker    lock.Locker
	Fetcher   Fetcher
	Policy    *Policy
	Bus       *events.Bus
	Retention RetentionPruner
	Scrapes   ScrapeEnqueuer
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Runner executes fetches of single sources.
//
// At most one Run per source executes at a time across every process sharing
// the Locker backend. Classified fetch failures never escape Run: they are
// absorbed into the source's retry and circuit state.
type Runner struct {
	sources   repository.SourceRepository
	jobs      repository.JobQueue
	locker    lock.Locker
	fetcher   Fetcher
	policy    *Policy
	bus       *events.Bus
	retention RetentionPruner
	scrapes   ScrapeEnqueuer
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// NewRunner creates a Runner. A nil Policy means the default retry table.
func NewRunner(deps RunnerDeps) *Runner {
	r := &Runner{
		sources:   deps.Sources,
		jobs:      deps.Jobs,
		locker:    deps.Locker,
		fetcher:   deps.Fetcher,
		policy:    deps.Policy,
		bus:       deps.Bus,
		retention: deps.Retention,
		scrapes:   deps.Scrapes,
		logger:    deps.Logger,
		now:       deps.Clock,
		tracer:    tracing.GetTracer(),
	}
	if r.policy == nil {
		r.policy = NewPolicy(nil)
	}
	if r.bus == nil {
		r.bus = events.NewBus(deps.Logger)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Enqueue marks the source queued and schedules a fetch job to run now.
// It never fetches inline. When the job cannot be stored the source is put
// back to idle so the scheduler claims it again.
func (r *Runner) Enqueue(ctx context.Context, sourceID int64, force bool) error {
	if err := r.sources.UpdateFetchStatus(ctx, sourceID, entity.FetchStatusQueued); err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	if err := r.enqueueJob(ctx, sourceID, force, 0, r.now()); err != nil {
		r.unqueue(ctx, sourceID)
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

func (r *Runner) unqueue(ctx context.Context, sourceID int64) {
	ctx = context.WithoutCancel(ctx)
	if err := r.sources.UpdateFetchStatus(ctx, sourceID, entity.FetchStatusIdle); err != nil {
		r.logger.Error("failed to revert queued source",
			slog.Int64("source_id", sourceID),
			slog.Any("error", err))
	}
}

// Run performs one fetch of the source.
//
// Returns:
//   - (nil, nil) when the circuit is open and force is false
//   - (nil, *ConcurrencyError) when another run holds the source lock
//   - (result, nil) when the fetcher ran, whether the feed succeeded or not
//   - (nil, err) on an unclassified failure; the source is left failed
func (r *Runner) Run(ctx context.Context, sourceID int64, force bool) (*entity.FetchResult, error) {
	ctx, span := r.tracer.Start(ctx, "fetch.Runner.Run", trace.WithAttributes(
		attribute.Int64("source.id", sourceID),
		attribute.Bool("fetch.force", force),
	))
	defer span.End()

	logger := r.logger.With(slog.Int64("source_id", sourceID))

	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("Run: get source: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}

	startedAt := r.now()
	if !force && src.CircuitOpen(startedAt) {
		if err := r.sources.UpdateFetchStatus(ctx, src.ID, entity.FetchStatusFailed); err != nil {
			return nil, fmt.Errorf("Run: mark skipped: %w", err)
		}
		src.FetchStatus = entity.FetchStatusFailed
		logger.Info("fetch skipped, circuit open",
			slog.Time("circuit_open_until", *src.FetchCircuitOpenUntil))
		span.SetAttributes(attribute.Bool("fetch.skipped", true))
		r.publish(ctx, events.FetchCompleted{
			Source: src, Forced: force, Skipped: true, StartedAt: startedAt, FinishedAt: startedAt,
		})
		return nil, nil
	}

	var result *entity.FetchResult
	err = r.locker.WithLock(ctx, lock.FetchNamespace, src.ID, func(ctx context.Context) error {
		var runErr error
		result, runErr = r.execute(ctx, src, force, startedAt)
		return runErr
	})

	var notAcquired *lock.NotAcquiredError
	if errors.As(err, &notAcquired) {
		metrics.RecordLockContention()
		logger.Info("fetch already running, skipping")
		return nil, &ConcurrencyError{SourceID: src.ID, Err: err}
	}
	if err != nil {
		r.markFailed(ctx, src, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch aborted")
		logger.Error("fetch aborted", slog.Any("error", err))
		r.publish(ctx, events.FetchCompleted{
			Source: src, Forced: force, StartedAt: startedAt, FinishedAt: r.now(),
		})
		return nil, err
	}

	span.SetAttributes(
		attribute.String("fetch.outcome", string(result.Outcome)),
		attribute.Int("fetch.items_created", result.Items.Created),
	)
	r.publish(ctx, events.FetchCompleted{
		Source: src, Result: result, Forced: force, StartedAt: startedAt, FinishedAt: r.now(),
	})
	return result, nil
}

// execute is the locked section of Run.
func (r *Runner) execute(ctx context.Context, stale *entity.Source, force bool, startedAt time.Time) (*entity.FetchResult, error) {
	// reload: a run that just released the lock may have changed retry state
	src, err := r.sources.Get(ctx, stale.ID)
	if err != nil {
		return nil, fmt.Errorf("reload source: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	*stale = *src
	src = stale

	if err := r.sources.MarkFetching(ctx, src.ID, startedAt); err != nil {
		return nil, fmt.Errorf("mark fetching: %w", err)
	}
	src.FetchStatus = entity.FetchStatusFetching
	src.LastFetchStartedAt = &startedAt

	result, err := r.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	if result == nil {
		return nil, errors.New("fetcher returned no result")
	}

	r.applyRetention(ctx, src)
	if result.Succeeded() {
		r.followUp(ctx, src, result)
	}

	now := r.now()
	if result.Succeeded() {
		r.recordSuccess(src, result, now)
	} else {
		r.recordFailure(ctx, src, result, force, now)
	}

	if err := r.sources.SaveFetchState(ctx, src); err != nil {
		return nil, fmt.Errorf("save fetch state: %w", err)
	}
	return result, nil
}

func (r *Runner) recordSuccess(src *entity.Source, result *entity.FetchResult, now time.Time) {
	next := now.Add(src.Interval())
	src.FetchStatus = entity.FetchStatusIdle
	src.FetchRetryAttempt = 0
	src.FetchCircuitOpenUntil = nil
	src.FailureCount = 0
	src.LastError = ""
	src.LastFetchedAt = &now
	src.NextFetchAt = &next
	if result.ETag != "" {
		src.ETag = result.ETag
	}
	if result.LastModified != "" {
		src.LastModified = result.LastModified
	}
}

func (r *Runner) recordFailure(ctx context.Context, src *entity.Source, result *entity.FetchResult, force bool, now time.Time) {
	decision := r.policy.Decide(src, result.Err, now)
	result.Retry = &decision

	src.FailureCount++
	src.LastError = truncate(errString(result.Err), maxLastErrorLen)
	src.FetchRetryAttempt = decision.NextAttempt
	src.FetchStatus = entity.FetchStatusFailed

	logger := r.logger.With(
		slog.Int64("source_id", src.ID),
		slog.String("error_class", decision.Class),
		slog.Any("error", result.Err),
	)

	if !decision.Retry {
		src.FetchCircuitOpenUntil = decision.CircuitUntil
		src.NextFetchAt = decision.CircuitUntil
		logger.Warn("fetch failed, circuit opened",
			slog.Time("circuit_open_until", *decision.CircuitUntil))
		return
	}

	runAt := now.Add(decision.Wait)
	src.FetchCircuitOpenUntil = nil
	src.NextFetchAt = &runAt
	if err := r.enqueueJob(ctx, src.ID, force, decision.NextAttempt, runAt); err != nil {
		// the scheduler picks the source up again once next_fetch_at passes
		logger.Error("failed to schedule fetch retry", slog.Any("enqueue_error", err))
		return
	}
	src.FetchStatus = entity.FetchStatusQueued
	logger.Info("fetch failed, retry scheduled",
		slog.Int("attempt", decision.NextAttempt),
		slog.Duration("wait", decision.Wait))
}

func (r *Runner) applyRetention(ctx context.Context, src *entity.Source) {
	if r.retention == nil {
		return
	}
	strategy := src.RetentionStrategy
	if strategy == "" {
		strategy = entity.RetentionDestroy
	}
	pruned, err := r.retention.Prune(ctx, src, strategy)
	if err != nil {
		r.logger.Warn("retention failed",
			slog.Int64("source_id", src.ID),
			slog.Any("error", err))
		return
	}
	if pruned > 0 {
		r.logger.Info("retention pruned items",
			slog.Int64("source_id", src.ID),
			slog.Int64("pruned", pruned))
	}
}

func (r *Runner) followUp(ctx context.Context, src *entity.Source, result *entity.FetchResult) {
	if r.scrapes == nil || !src.ScrapesAutomatically() {
		return
	}
	for _, item := range result.Items.CreatedItems {
		if _, err := r.scrapes.Enqueue(ctx, item, src, "new_item"); err != nil {
			r.logger.Warn("failed to enqueue scrape",
				slog.Int64("source_id", src.ID),
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
		}
	}
}

// markFailed records an aborted run. It must succeed even if ctx was cancelled.
func (r *Runner) markFailed(ctx context.Context, src *entity.Source, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := r.sources.UpdateFetchStatus(ctx, src.ID, entity.FetchStatusFailed); err != nil {
		r.logger.Error("failed to mark source failed",
			slog.Int64("source_id", src.ID),
			slog.Any("cause", cause),
			slog.Any("error", err))
		return
	}
	src.FetchStatus = entity.FetchStatusFailed
}

func (r *Runner) publish(ctx context.Context, ev events.FetchCompleted) {
	r.bus.PublishFetchCompleted(ctx, ev)
}

func (r *Runner) enqueueJob(ctx context.Context, sourceID int64, force bool, attempt int, runAt time.Time) error {
	payload, err := json.Marshal(entity.FetchSourcePayload{SourceID: sourceID, Force: force, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	job := &entity.Job{
		ID:      uuid.NewString(),
		Kind:    entity.JobKindFetchSource,
		Payload: payload,
		RunAt:   runAt,
	}
	if err := r.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue fetch job: %w", err)
	}
	return nil
}

// HandleJob runs a fetch_source job. Lock contention and vanished sources
// complete the job; unclassified failures are returned for the job layer to retry.
func (r *Runner) HandleJob(ctx context.Context, job *entity.Job) error {
	var payload entity.FetchSourcePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("HandleJob: decode payload: %w", err)
	}

	_, err := r.Run(ctx, payload.SourceID, payload.Force)
	var concurrent *ConcurrencyError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &concurrent):
		return nil
	case errors.Is(err, ErrSourceNotFound):
		r.logger.Warn("fetch job references missing source",
			slog.String("job_id", job.ID),
			slog.Int64("source_id", payload.SourceID))
		return nil
	default:
		return err
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

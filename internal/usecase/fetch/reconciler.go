package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/resilience/lock"
)

// StalledError is the last_error recorded on a source whose fetch was orphaned.
const StalledError = "fetch stalled: worker stopped before finishing"

// Reconciler resets sources left in fetching by a worker that died mid-run,
// and re-enqueues sources left queued without a job to run them.
//
// A fetching source is orphaned when it has been fetching for longer than the
// stall threshold and its fetch lock can be acquired. A lock that is still
// held means the fetch is alive, only slow. A queued source is orphaned when
// it has been queued for longer than the threshold and no unfinished
// fetch_source job references it.
type Reconciler struct {
	sources      repository.SourceRepository
	locker       lock.Locker
	enqueuer     Enqueuer
	stalledAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(sources repository.SourceRepository, locker lock.Locker, enqueuer Enqueuer, stalledAfter time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		sources:      sources,
		locker:       locker,
		enqueuer:     enqueuer,
		stalledAfter: stalledAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the reconciler's time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run resets up to limit stalled sources and up to limit orphaned queued
// sources, re-enqueueing both. It returns the number of sources recovered.
func (r *Reconciler) Run(ctx context.Context, limit int) (int, error) {
	now := r.now()
	cutoff := now.Add(-r.stalledAfter)

	stalled, err := r.sources.ListStalled(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("Run: list stalled: %w", err)
	}

	reset := 0
	for _, src := range stalled {
		ok, err := r.reset(ctx, src.ID, cutoff, now)
		if err != nil {
			r.logger.Error("failed to reset stalled fetch",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		reset++

		if err := r.enqueuer.Enqueue(ctx, src.ID, false); err != nil {
			r.logger.Error("failed to re-enqueue stalled source",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
		}
	}

	requeued, err := r.requeueOrphans(ctx, cutoff, limit)
	if err != nil {
		return reset, err
	}

	if total := reset + requeued; total > 0 {
		metrics.RecordStalledFetchesReset(total)
		r.logger.Warn("recovered stalled fetches",
			slog.Int("reset", reset),
			slog.Int("requeued", requeued))
	}
	return reset + requeued, nil
}

func (r *Reconciler) requeueOrphans(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	orphaned, err := r.sources.ListOrphanedQueued(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("Run: list orphaned queued: %w", err)
	}

	requeued := 0
	for _, src := range orphaned {
		ok, err := r.stillQueued(ctx, src.ID)
		if err != nil {
			r.logger.Error("failed to check orphaned queued source",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		if err := r.enqueuer.Enqueue(ctx, src.ID, false); err != nil {
			r.logger.Error("failed to re-enqueue orphaned source",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
			continue
		}
		requeued++
	}
	return requeued, nil
}

// stillQueued reports whether the source is queued and no run holds its lock.
func (r *Reconciler) stillQueued(ctx context.Context, sourceID int64) (bool, error) {
	queued := false
	err := r.locker.WithLock(ctx, lock.FetchNamespace, sourceID, func(ctx context.Context) error {
		src, err := r.sources.Get(ctx, sourceID)
		if err != nil {
			return err
		}
		queued = src != nil && src.FetchStatus == entity.FetchStatusQueued
		return nil
	})

	var notAcquired *lock.NotAcquiredError
	if errors.As(err, &notAcquired) {
		return false, nil
	}
	return queued, err
}

func (r *Reconciler) reset(ctx context.Context, sourceID int64, cutoff, now time.Time) (bool, error) {
	done := false
	err := r.locker.WithLock(ctx, lock.FetchNamespace, sourceID, func(ctx context.Context) error {
		src, err := r.sources.Get(ctx, sourceID)
		if err != nil {
			return err
		}
		// finished or restarted between the listing and the lock
		if src == nil || src.FetchStatus != entity.FetchStatusFetching ||
			src.LastFetchStartedAt == nil || !src.LastFetchStartedAt.Before(cutoff) {
			return nil
		}

		src.FetchStatus = entity.FetchStatusFailed
		src.LastError = StalledError
		src.FailureCount++
		src.NextFetchAt = &now
		if err := r.sources.SaveFetchState(ctx, src); err != nil {
			return err
		}
		done = true
		return nil
	})

	var notAcquired *lock.NotAcquiredError
	if errors.As(err, &notAcquired) {
		r.logger.Debug("stalled fetch still holds its lock", slog.Int64("source_id", sourceID))
		return false, nil
	}
	return done, err
}

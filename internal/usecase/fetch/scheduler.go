package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
)

// Enqueuer schedules asynchronous fetches. Runner implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, sourceID int64, force bool) error
}

// Scheduler enqueues fetches for due sources. It does not schedule itself;
// a periodic trigger calls Run.
type Scheduler struct {
	sources  repository.SourceRepository
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a Scheduler. A nil logger means slog.Default().
func NewScheduler(sources repository.SourceRepository, enqueuer Enqueuer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sources: sources, enqueuer: enqueuer, logger: logger, now: time.Now}
}

// WithClock replaces the scheduler's time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run enqueues up to limit due sources, most overdue first, and returns how
// many were enqueued.
//
// Claiming flips sources to queued atomically, so two passes in quick
// succession (or two scheduler processes) never enqueue the same source twice.
func (s *Scheduler) Run(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	start := time.Now()
	due, err := s.sources.ClaimDue(ctx, s.now(), limit)
	metrics.RecordDBQuery("claim_due_sources", time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("Run: claim due sources: %w", err)
	}

	enqueued := 0
	for _, src := range due {
		if err := ctx.Err(); err != nil {
			s.release(src.ID)
			continue
		}
		if err := s.enqueuer.Enqueue(ctx, src.ID, false); err != nil {
			s.logger.Error("failed to enqueue fetch",
				slog.Int64("source_id", src.ID),
				slog.Any("error", err))
			s.release(src.ID)
			continue
		}
		enqueued++
	}

	metrics.RecordSchedulerEnqueued("fetch", enqueued)
	if enqueued > 0 || len(due) > 0 {
		s.logger.Info("fetch scheduler pass",
			slog.Int("claimed", len(due)),
			slog.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

// release returns a claimed source that could not be enqueued to the due set.
func (s *Scheduler) release(sourceID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sources.UpdateFetchStatus(ctx, sourceID, entity.FetchStatusIdle); err != nil {
		s.logger.Error("failed to release claimed source",
			slog.Int64("source_id", sourceID),
			slog.Any("error", err))
	}
}

package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
)

// ErrSourceNotFound is returned by Reset.Call for an unknown source.
var ErrSourceNotFound = fmt.Errorf("source: %w", entity.ErrNotFound)

// Reset is the manual override that returns a source to healthy regardless
// of its recent history.
type Reset struct {
	sources repository.SourceRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewReset(sources repository.SourceRepository, logger *slog.Logger) *Reset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reset{sources: sources, logger: logger, now: time.Now}
}

// WithClock replaces the reset's time source.
func (r *Reset) WithClock(now func() time.Time) *Reset {
	r.now = now
	return r
}

// Call clears the window and auto-pause of the source and marks it healthy.
// A next fetch that was only held back by the auto-pause becomes due now.
func (r *Reset) Call(ctx context.Context, sourceID int64) (*entity.Source, error) {
	now := r.now()
	var before entity.HealthStatus
	src, err := r.sources.UpdateHealth(ctx, sourceID, func(src *entity.Source) error {
		before = src.HealthStatus
		if heldByPause(src, now) {
			src.NextFetchAt = &now
		}
		src.HealthWindow = nil
		src.HealthSuccessRate = 1
		src.HealthStatus = entity.HealthStatusHealthy
		src.AutoPausedUntil = nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Call: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}

	metrics.RecordHealthTransition(string(before), string(entity.HealthStatusHealthy))
	r.logger.Info("source health reset",
		slog.Int64("source_id", sourceID),
		slog.String("previous_status", string(before)))
	return src, nil
}

// heldByPause reports whether src's next fetch sits at its auto-pause deadline.
func heldByPause(src *entity.Source, now time.Time) bool {
	if src.HealthStatus != entity.HealthStatusAutoPaused || src.AutoPausedUntil == nil || src.NextFetchAt == nil {
		return false
	}
	return src.NextFetchAt.Equal(*src.AutoPausedUntil) && src.NextFetchAt.After(now)
}

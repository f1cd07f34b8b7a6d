package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/usecase/events"
)

// Monitor updates source health after every executed fetch.
// Register it on the event bus; runs that never reached the fetcher are ignored.
type Monitor struct {
	sources repository.SourceRepository
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewMonitor creates a Monitor with the given thresholds.
func NewMonitor(sources repository.SourceRepository, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sources: sources, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the monitor's time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// OnFetchCompleted implements events.FetchCompletedListener.
func (m *Monitor) OnFetchCompleted(ctx context.Context, ev events.FetchCompleted) error {
	if !ev.Executed() || ev.Source == nil {
		return nil
	}
	_, err := m.Record(ctx, ev.Source.ID, ev.Result.Succeeded())
	return err
}

// Record appends one outcome to the source's window under a row lock and
// returns the updated source. It returns (nil, nil) for a missing source.
func (m *Monitor) Record(ctx context.Context, sourceID int64, success bool) (*entity.Source, error) {
	now := m.now()
	var before entity.HealthStatus

	src, err := m.sources.UpdateHealth(ctx, sourceID, func(src *entity.Source) error {
		before = src.HealthStatus
		m.cfg.Apply(src, success, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}
	if src == nil {
		return nil, nil
	}

	if before != src.HealthStatus {
		metrics.RecordHealthTransition(string(before), string(src.HealthStatus))
		attrs := []any{
			slog.Int64("source_id", sourceID),
			slog.String("from", string(before)),
			slog.String("to", string(src.HealthStatus)),
			slog.Float64("success_rate", src.HealthSuccessRate),
		}
		if src.HealthStatus == entity.HealthStatusAutoPaused {
			m.logger.Warn("source auto-paused", append(attrs, slog.Time("auto_paused_until", *src.AutoPausedUntil))...)
		} else {
			m.logger.Info("source health changed", attrs...)
		}
	}
	return src, nil
}

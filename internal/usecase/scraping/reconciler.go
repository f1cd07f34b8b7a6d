package scraping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
)

// Reconciler recovers items left pending or processing by a worker or job
// that disappeared. Stuck items count against their source's in-flight cap,
// so they are cleared back to nil and queued again.
type Reconciler struct {
	items      repository.ItemRepository
	sources    repository.SourceRepository
	state      *State
	enqueuer   *Enqueuer
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconciler(items repository.ItemRepository, sources repository.SourceRepository, state *State, enqueuer *Enqueuer, staleAfter time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		items:      items,
		sources:    sources,
		state:      state,
		enqueuer:   enqueuer,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the reconciler's time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run clears up to limit items whose scrape status has not changed for the
// stale threshold and re-enqueues those whose source still allows scraping.
// It returns the number of items cleared.
func (r *Reconciler) Run(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	stale, err := r.items.ListStaleInFlight(ctx, r.now().Add(-r.staleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("Run: list stale in-flight items: %w", err)
	}

	sources := make(map[int64]*entity.Source)
	cleared, requeued := 0, 0
	for _, item := range stale {
		if ctx.Err() != nil {
			break
		}
		// a CAS miss means the item finished or moved on since the listing
		ok, err := r.state.ClearInflight(ctx, item.ID)
		if err != nil {
			r.logger.Error("failed to clear stale in-flight item",
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		cleared++
		item.ScrapeStatus = entity.ScrapeStatusNone

		src, found := sources[item.SourceID]
		if !found {
			src, err = r.sources.Get(ctx, item.SourceID)
			if err != nil {
				return cleared, fmt.Errorf("Run: get source %d: %w", item.SourceID, err)
			}
			sources[item.SourceID] = src
		}
		if src == nil || !src.Active {
			continue
		}

		queued, err := r.enqueuer.Enqueue(ctx, item, src, "recovered")
		if err != nil {
			r.logger.Error("failed to re-enqueue recovered item",
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
			continue
		}
		if queued {
			requeued++
		}
	}

	if cleared > 0 {
		metrics.RecordScrapesRecovered(cleared)
		r.logger.Warn("recovered stale in-flight scrapes",
			slog.Int("cleared", cleared),
			slog.Int("requeued", requeued))
	}
	return cleared, nil
}

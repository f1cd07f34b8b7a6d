package scraping

import (
	"context"
	"fmt"
	"log/slog"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/metrics"
	"feed-monitor/internal/repository"
)

// Scheduler queues scrapes for items that were never scraped.
type Scheduler struct {
	items    repository.ItemRepository
	sources  repository.SourceRepository
	enqueuer *Enqueuer
	logger   *slog.Logger
}

func NewScheduler(items repository.ItemRepository, sources repository.SourceRepository, enqueuer *Enqueuer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{items: items, sources: sources, enqueuer: enqueuer, logger: logger}
}

// Run considers up to limit candidates, oldest first, and returns how many
// were actually enqueued. Candidates rejected by the per-source cap are
// picked up by a later pass.
func (s *Scheduler) Run(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	candidates, err := s.items.ListScrapeCandidates(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("Run: list candidates: %w", err)
	}

	sources := make(map[int64]*entity.Source)
	enqueued := 0
	for _, item := range candidates {
		if ctx.Err() != nil {
			break
		}
		src, ok := sources[item.SourceID]
		if !ok {
			src, err = s.sources.Get(ctx, item.SourceID)
			if err != nil {
				return enqueued, fmt.Errorf("Run: get source %d: %w", item.SourceID, err)
			}
			sources[item.SourceID] = src
		}
		if src == nil || !src.Active || !src.ScrapesAutomatically() {
			continue
		}

		ok, err = s.enqueuer.Enqueue(ctx, item, src, "scheduled")
		if err != nil {
			s.logger.Error("failed to enqueue scrape",
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
			continue
		}
		if ok {
			enqueued++
		}
	}

	metrics.RecordSchedulerEnqueued("scrape", enqueued)
	if len(candidates) > 0 {
		s.logger.Info("scrape scheduler pass",
			slog.Int("candidates", len(candidates)),
			slog.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

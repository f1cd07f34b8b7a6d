package scraping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

// DefaultMaxInFlight caps concurrent scrapes per source when the source sets no limit.
const DefaultMaxInFlight = 5

// Enqueuer queues scrape jobs, enforcing a per-source in-flight cap.
type Enqueuer struct {
	items  repository.ItemRepository
	state  *State
	jobs   repository.JobQueue
	logger *slog.Logger
	now    func() time.Time
}

func NewEnqueuer(items repository.ItemRepository, state *State, jobs repository.JobQueue, logger *slog.Logger) *Enqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{items: items, state: state, jobs: jobs, logger: logger, now: time.Now}
}

// Enqueue queues a scrape of item. It returns false without error when the
// item is already in flight, scraping is disabled for src, or src is at its
// in-flight cap.
func (e *Enqueuer) Enqueue(ctx context.Context, item *entity.Item, src *entity.Source, reason string) (bool, error) {
	if item.ScrapeStatus.InFlight() || !src.ScrapingEnabled {
		return false, nil
	}

	limit := src.ScrapeMaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	inFlight, err := e.items.CountInFlight(ctx, src.ID)
	if err != nil {
		return false, fmt.Errorf("Enqueue: count in flight: %w", err)
	}
	if inFlight >= limit {
		e.logger.Debug("scrape rejected, source at in-flight cap",
			slog.Int64("source_id", src.ID),
			slog.Int64("item_id", item.ID),
			slog.Int("in_flight", inFlight))
		return false, nil
	}

	ok, err := e.state.MarkPending(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("Enqueue: %w", err)
	}
	if !ok {
		return false, nil
	}

	payload, err := json.Marshal(entity.ScrapeItemPayload{ItemID: item.ID, SourceID: src.ID, Reason: reason})
	if err != nil {
		return false, fmt.Errorf("Enqueue: encode payload: %w", err)
	}
	job := &entity.Job{
		ID:      uuid.NewString(),
		Kind:    entity.JobKindScrapeItem,
		Payload: payload,
		RunAt:   e.now(),
	}
	if err := e.jobs.Enqueue(ctx, job); err != nil {
		if _, clearErr := e.state.ClearInflight(context.WithoutCancel(ctx), item.ID); clearErr != nil {
			e.logger.Error("failed to clear pending item after enqueue error",
				slog.Int64("item_id", item.ID),
				slog.Any("error", clearErr))
		}
		return false, fmt.Errorf("Enqueue: %w", err)
	}

	item.ScrapeStatus = entity.ScrapeStatusPending
	return true, nil
}

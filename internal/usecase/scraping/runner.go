package scraping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/observability/tracing"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/usecase/events"
)

// ItemScraper downloads an item's page and extracts its main content.
type ItemScraper interface {
	Scrape(ctx context.Context, item *entity.Item) (string, error)
}

// errScraperPanic marks a scraper that panicked instead of returning an error.
var errScraperPanic = errors.New("scraper panicked")

// Runner executes scrape_item jobs.
type Runner struct {
	items   repository.ItemRepository
	state   *State
	scraper ItemScraper
	bus     *events.Bus
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewRunner(items repository.ItemRepository, state *State, scraper ItemScraper, bus *events.Bus, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Runner{
		items:   items,
		state:   state,
		scraper: scraper,
		bus:     bus,
		logger:  logger,
		tracer:  tracing.GetTracer(),
	}
}

// Run scrapes one item.
//
// Scraper errors are recorded as a failed scrape and not returned. Anything
// unexpected (cancellation, a scraper panic, a storage error while saving the
// result) puts the item back to pending and is returned so the job layer
// retries it.
func (r *Runner) Run(ctx context.Context, itemID int64) error {
	ctx, span := r.tracer.Start(ctx, "scraping.Runner.Run", trace.WithAttributes(
		attribute.Int64("item.id", itemID),
	))
	defer span.End()

	logger := r.logger.With(slog.Int64("item_id", itemID))

	item, err := r.items.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("Run: get item: %w", err)
	}
	if item == nil {
		logger.Warn("scrape job references missing item")
		return nil
	}

	ok, err := r.state.MarkProcessing(ctx, itemID)
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	if !ok {
		logger.Info("item no longer in flight, skipping scrape",
			slog.String("scrape_status", string(item.ScrapeStatus)))
		return nil
	}
	item.ScrapeStatus = entity.ScrapeStatusProcessing

	content, scrapeErr := r.scrape(ctx, item)
	if scrapeErr != nil && (ctx.Err() != nil || errors.Is(scrapeErr, errScraperPanic)) {
		return r.abort(ctx, span, item, scrapeErr)
	}

	if scrapeErr != nil {
		if _, err := r.state.MarkFailed(ctx, itemID); err != nil {
			return r.abort(ctx, span, item, err)
		}
		item.ScrapeStatus = entity.ScrapeStatusFailed
		logger.Warn("scrape failed", slog.Any("error", scrapeErr))
		span.SetAttributes(attribute.String("scrape.status", string(entity.ScrapeStatusFailed)))
		r.bus.PublishItemScraped(ctx, events.ItemScraped{Item: item, Status: entity.ScrapeStatusFailed, Err: scrapeErr})
		return nil
	}

	if _, err := r.state.MarkSuccess(ctx, itemID, content); err != nil {
		return r.abort(ctx, span, item, err)
	}
	item.ScrapeStatus = entity.ScrapeStatusSuccess
	item.ScrapedContent = content
	logger.Info("item scraped", slog.Int("content_length", len(content)))
	span.SetAttributes(attribute.String("scrape.status", string(entity.ScrapeStatusSuccess)))
	r.bus.PublishItemScraped(ctx, events.ItemScraped{Item: item, Status: entity.ScrapeStatusSuccess})
	return nil
}

func (r *Runner) scrape(ctx context.Context, item *entity.Item) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errScraperPanic, rec)
		}
	}()
	return r.scraper.Scrape(ctx, item)
}

// abort returns item to pending for the job retry and returns cause.
func (r *Runner) abort(ctx context.Context, span trace.Span, item *entity.Item, cause error) error {
	if _, err := r.state.Requeue(context.WithoutCancel(ctx), item.ID); err != nil {
		r.logger.Error("failed to requeue in-flight item",
			slog.Int64("item_id", item.ID),
			slog.Any("error", err))
	}
	span.RecordError(cause)
	span.SetStatus(codes.Error, "scrape aborted")
	return fmt.Errorf("scrape item %d: %w", item.ID, cause)
}

// HandleJob runs a scrape_item job.
func (r *Runner) HandleJob(ctx context.Context, job *entity.Job) error {
	var payload entity.ScrapeItemPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("HandleJob: decode payload: %w", err)
	}
	return r.Run(ctx, payload.ItemID)
}

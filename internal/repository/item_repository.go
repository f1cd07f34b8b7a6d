package repository

import (
	"context"
	"time"

	"feed-monitor/internal/domain/entity"
)

// PruneCriteria describes which items of a source retention removes.
type PruneCriteria struct {
	// OlderThan removes items created before this instant (nil disables).
	OlderThan *time.Time
	// KeepNewest keeps only the newest N items (0 disables).
	KeepNewest int
	Strategy   entity.RetentionStrategy
}

type ItemRepository interface {
	// Get returns (nil, nil) when the item does not exist.
	Get(ctx context.Context, id int64) (*entity.Item, error)

	// Upsert inserts the item or refreshes an existing row with the same
	// dedup key. created reports whether a new row was inserted.
	Upsert(ctx context.Context, item *entity.Item) (created bool, err error)

	// TransitionScrapeStatus sets scrape_status to `to` only when the current
	// status is one of from. It reports whether the row was changed.
	TransitionScrapeStatus(ctx context.Context, id int64, from []entity.ScrapeStatus, to entity.ScrapeStatus) (bool, error)

	// CompleteScrape stores scraped content and marks a processing item success.
	CompleteScrape(ctx context.Context, id int64, content string, scrapedAt time.Time) (bool, error)

	// CountInFlight counts items of the source whose scrape is pending or processing.
	CountInFlight(ctx context.Context, sourceID int64) (int, error)

	// ListScrapeCandidates returns never-scraped items of active sources with
	// automatic scraping enabled, oldest first.
	ListScrapeCandidates(ctx context.Context, limit int) ([]*entity.Item, error)

	// ListStaleInFlight returns pending or processing items whose scrape status
	// last changed before changedBefore.
	ListStaleInFlight(ctx context.Context, changedBefore time.Time, limit int) ([]*entity.Item, error)

	Prune(ctx context.Context, sourceID int64, criteria PruneCriteria) (int64, error)
}

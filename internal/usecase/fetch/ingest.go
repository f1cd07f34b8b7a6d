package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
	"feed-monitor/internal/usecase/events"
)

// FeedRequest is one conditional feed download.
type FeedRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// FeedEntry is one entry of a parsed feed.
type FeedEntry struct {
	GUID        string
	Title       string
	URL         string
	Summary     string
	Content     string
	PublishedAt *time.Time
}

// FeedDocument is a downloaded feed. NotModified is set when the server
// answered a conditional request with 304 and Entries is empty.
type FeedDocument struct {
	NotModified  bool
	Entries      []FeedEntry
	ETag         string
	LastModified string
}

// FeedReader downloads and parses feeds.
// Failures are returned as the typed errors of this package.
type FeedReader interface {
	Read(ctx context.Context, req FeedRequest) (*FeedDocument, error)
}

// ItemCreator stores feed entries as items of a source, deduplicating by
// GUID or content fingerprint.
type ItemCreator interface {
	Create(ctx context.Context, src *entity.Source, entries []FeedEntry) (entity.ItemProcessing, error)
}

// Ingester is the Fetcher that reads a feed and hands its entries to an ItemCreator.
type Ingester struct {
	reader  FeedReader
	creator ItemCreator
}

func NewIngester(reader FeedReader, creator ItemCreator) *Ingester {
	return &Ingester{reader: reader, creator: creator}
}

// Fetch implements Fetcher.
func (g *Ingester) Fetch(ctx context.Context, src *entity.Source) (*entity.FetchResult, error) {
	doc, err := g.reader.Read(ctx, FeedRequest{
		URL:          src.FeedURL,
		ETag:         src.ETag,
		LastModified: src.LastModified,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &entity.FetchResult{Outcome: entity.FetchOutcomeFailed, Err: err}, nil
	}

	result := &entity.FetchResult{
		Outcome:      entity.FetchOutcomeFetched,
		ETag:         doc.ETag,
		LastModified: doc.LastModified,
	}
	if doc.NotModified {
		result.Outcome = entity.FetchOutcomeNotModified
		return result, nil
	}

	processing, err := g.creator.Create(ctx, src, doc.Entries)
	if err != nil {
		return nil, fmt.Errorf("create items: %w", err)
	}
	result.Items = processing
	return result, nil
}

// RepositoryItemCreator upserts entries through an ItemRepository and
// publishes ItemCreated for every new row.
type RepositoryItemCreator struct {
	items  repository.ItemRepository
	bus    *events.Bus
	logger *slog.Logger
}

func NewRepositoryItemCreator(items repository.ItemRepository, bus *events.Bus, logger *slog.Logger) *RepositoryItemCreator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryItemCreator{items: items, bus: bus, logger: logger}
}

// Create implements ItemCreator. An entry without a URL or title counts as
// failed; a storage error on one entry is logged and counted as failed.
func (c *RepositoryItemCreator) Create(ctx context.Context, src *entity.Source, entries []FeedEntry) (entity.ItemProcessing, error) {
	var out entity.ItemProcessing
	for _, e := range entries {
		if strings.TrimSpace(e.URL) == "" && strings.TrimSpace(e.Title) == "" {
			out.Failed++
			continue
		}
		item := &entity.Item{
			SourceID:    src.ID,
			GUID:        strings.TrimSpace(e.GUID),
			Title:       strings.TrimSpace(e.Title),
			URL:         strings.TrimSpace(e.URL),
			Summary:     e.Summary,
			Content:     e.Content,
			PublishedAt: e.PublishedAt,
		}
		item.ContentFingerprint = entity.Fingerprint(item.Title, item.URL, item.Content, item.PublishedAt)

		created, err := c.items.Upsert(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			c.logger.Warn("failed to store feed entry",
				slog.Int64("source_id", src.ID),
				slog.String("url", item.URL),
				slog.Any("error", err))
			out.Failed++
			continue
		}
		if !created {
			out.Updated++
			continue
		}
		out.Created++
		out.CreatedItems = append(out.CreatedItems, item)
		if c.bus != nil {
			c.bus.PublishItemCreated(ctx, events.ItemCreated{Source: src, Item: item})
		}
	}
	return out, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

const itemColumns = `i.id, i.source_id, i.guid, i.content_fingerprint, i.title, i.url, i.summary, i.content,
       i.published_at, i.scrape_status, i.scraped_at, i.scraped_content, i.created_at, i.deleted_at`

type ItemRepo struct{ db *sql.DB }

func NewItemRepo(db *sql.DB) repository.ItemRepository {
	return &ItemRepo{db: db}
}

func scanItem(sc rowScanner) (*entity.Item, error) {
	var (
		it     entity.Item
		status sql.NullString
	)
	if err := sc.Scan(
		&it.ID, &it.SourceID, &it.GUID, &it.ContentFingerprint, &it.Title, &it.URL, &it.Summary, &it.Content,
		&it.PublishedAt, &status, &it.ScrapedAt, &it.ScrapedContent, &it.CreatedAt, &it.DeletedAt,
	); err != nil {
		return nil, err
	}
	it.ScrapeStatus = entity.ScrapeStatus(status.String)
	return &it, nil
}

// nullStatus maps ScrapeStatusNone to SQL NULL.
func nullStatus(s entity.ScrapeStatus) sql.NullString {
	return sql.NullString{String: string(s), Valid: s != entity.ScrapeStatusNone}
}

func (repo *ItemRepo) Get(ctx context.Context, id int64) (*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items i
WHERE i.id = $1
LIMIT 1`
	it, err := scanItem(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return it, nil
}

// Upsert relies on xmax = 0 to tell a fresh insert from a conflict update.
func (repo *ItemRepo) Upsert(ctx context.Context, item *entity.Item) (bool, error) {
	key := item.DedupKey()
	if item.ContentFingerprint == "" {
		item.ContentFingerprint = entity.Fingerprint(item.Title, item.URL, item.Content, item.PublishedAt)
	}

	const query = `
INSERT INTO items (source_id, guid, content_fingerprint, dedup_key, title, url, summary, content, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (source_id, dedup_key) DO UPDATE SET
       content_fingerprint = EXCLUDED.content_fingerprint,
       title               = EXCLUDED.title,
       url                 = EXCLUDED.url,
       summary             = EXCLUDED.summary,
       content             = EXCLUDED.content,
       published_at        = EXCLUDED.published_at,
       updated_at          = now()
RETURNING id, created_at, (xmax = 0) AS inserted`
	var created bool
	err := repo.db.QueryRowContext(ctx, query,
		item.SourceID, item.GUID, item.ContentFingerprint, key,
		item.Title, item.URL, item.Summary, item.Content, item.PublishedAt,
	).Scan(&item.ID, &item.CreatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("Upsert: %w", err)
	}
	return created, nil
}

func (repo *ItemRepo) TransitionScrapeStatus(ctx context.Context, id int64, from []entity.ScrapeStatus, to entity.ScrapeStatus) (bool, error) {
	named := make([]string, 0, len(from))
	includesNone := false
	for _, s := range from {
		if s == entity.ScrapeStatusNone {
			includesNone = true
			continue
		}
		named = append(named, string(s))
	}

	const query = `
UPDATE items SET scrape_status = $1, scrape_status_at = now(), updated_at = now()
WHERE id = $2
  AND (scrape_status = ANY($3) OR ($4 AND scrape_status IS NULL))`
	res, err := repo.db.ExecContext(ctx, query, nullStatus(to), id, pq.Array(named), includesNone)
	if err != nil {
		return false, fmt.Errorf("TransitionScrapeStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TransitionScrapeStatus: %w", err)
	}
	return n == 1, nil
}

func (repo *ItemRepo) CompleteScrape(ctx context.Context, id int64, content string, scrapedAt time.Time) (bool, error) {
	const query = `
UPDATE items SET
       scrape_status    = 'success',
       scraped_content  = $1,
       scraped_at       = $2,
       scrape_status_at = now(),
       updated_at       = now()
WHERE id = $3 AND scrape_status = 'processing'`
	res, err := repo.db.ExecContext(ctx, query, content, scrapedAt, id)
	if err != nil {
		return false, fmt.Errorf("CompleteScrape: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CompleteScrape: %w", err)
	}
	return n == 1, nil
}

func (repo *ItemRepo) CountInFlight(ctx context.Context, sourceID int64) (int, error) {
	const query = `
SELECT COUNT(*) FROM items
WHERE source_id = $1
  AND scrape_status IN ('pending', 'processing')
  AND deleted_at IS NULL`
	var n int
	if err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountInFlight: %w", err)
	}
	return n, nil
}

func (repo *ItemRepo) ListScrapeCandidates(ctx context.Context, limit int) ([]*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items i
JOIN sources s ON s.id = i.source_id
WHERE i.scraped_at IS NULL
  AND i.scrape_status IS NULL
  AND i.deleted_at IS NULL
  AND s.active = TRUE
  AND s.scraping_enabled = TRUE
  AND s.auto_scrape = TRUE
ORDER BY i.created_at ASC, i.id ASC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListScrapeCandidates: %w", err)
	}
	items, err := collectItems(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("ListScrapeCandidates: %w", err)
	}
	return items, nil
}

// ListStaleInFlight treats a NULL scrape_status_at as stale; such rows predate the column.
func (repo *ItemRepo) ListStaleInFlight(ctx context.Context, changedBefore time.Time, limit int) ([]*entity.Item, error) {
	query := `SELECT ` + itemColumns + `
FROM items i
WHERE i.scrape_status IN ('pending', 'processing')
  AND (i.scrape_status_at IS NULL OR i.scrape_status_at < $1)
  AND i.deleted_at IS NULL
ORDER BY i.scrape_status_at ASC NULLS FIRST, i.id ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, changedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ListStaleInFlight: %w", err)
	}
	items, err := collectItems(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("ListStaleInFlight: %w", err)
	}
	return items, nil
}

func collectItems(rows *sql.Rows, capacity int) ([]*entity.Item, error) {
	defer func() { _ = rows.Close() }()
	items := make([]*entity.Item, 0, capacity)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Prune removes items older than criteria.OlderThan or beyond the newest
// criteria.KeepNewest. Soft deletion stamps deleted_at instead of deleting.
func (repo *ItemRepo) Prune(ctx context.Context, sourceID int64, criteria repository.PruneCriteria) (int64, error) {
	if criteria.OlderThan == nil && criteria.KeepNewest <= 0 {
		return 0, nil
	}

	args := []any{sourceID}
	var conds []string
	if criteria.OlderThan != nil {
		args = append(args, *criteria.OlderThan)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if criteria.KeepNewest > 0 {
		args = append(args, criteria.KeepNewest)
		conds = append(conds, fmt.Sprintf(`id NOT IN (
       SELECT id FROM items
       WHERE source_id = $1 AND deleted_at IS NULL
       ORDER BY created_at DESC, id DESC
       LIMIT $%d)`, len(args)))
	}

	var sb strings.Builder
	if criteria.Strategy == entity.RetentionSoftDelete {
		sb.WriteString("UPDATE items SET deleted_at = now(), updated_at = now()")
	} else {
		sb.WriteString("DELETE FROM items")
	}
	sb.WriteString("\nWHERE source_id = $1 AND deleted_at IS NULL\n  AND (")
	sb.WriteString(strings.Join(conds, " OR "))
	sb.WriteString(")")

	res, err := repo.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("Prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Prune: %w", err)
	}
	return n, nil
}

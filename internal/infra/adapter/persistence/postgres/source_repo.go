package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

const sourceColumns = `id, name, feed_url, fetch_interval_seconds, active,
       fetch_status, fetch_retry_attempt, fetch_circuit_open_until, next_fetch_at,
       last_fetched_at, last_fetch_started_at, failure_count, last_error, etag, last_modified,
       health_status, health_window, health_success_rate, auto_paused_until,
       scraping_enabled, auto_scrape, scrape_max_in_flight,
       retention_days, max_items, retention_strategy`

type SourceRepo struct{ db *sql.DB }

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(sc rowScanner) (*entity.Source, error) {
	var (
		s                 entity.Source
		intervalSeconds   int64
		fetchStatus       string
		healthStatus      string
		retentionStrategy string
		window            pq.BoolArray
	)
	if err := sc.Scan(
		&s.ID, &s.Name, &s.FeedURL, &intervalSeconds, &s.Active,
		&fetchStatus, &s.FetchRetryAttempt, &s.FetchCircuitOpenUntil, &s.NextFetchAt,
		&s.LastFetchedAt, &s.LastFetchStartedAt, &s.FailureCount, &s.LastError, &s.ETag, &s.LastModified,
		&healthStatus, &window, &s.HealthSuccessRate, &s.AutoPausedUntil,
		&s.ScrapingEnabled, &s.AutoScrape, &s.ScrapeMaxInFlight,
		&s.RetentionDays, &s.MaxItems, &retentionStrategy,
	); err != nil {
		return nil, err
	}
	s.FetchInterval = time.Duration(intervalSeconds) * time.Second
	s.FetchStatus = entity.FetchStatus(fetchStatus)
	s.HealthStatus = entity.HealthStatus(healthStatus)
	s.RetentionStrategy = entity.RetentionStrategy(retentionStrategy)
	s.HealthWindow = []bool(window)
	return &s, nil
}

func collectSources(rows *sql.Rows) ([]*entity.Source, error) {
	defer func() { _ = rows.Close() }()
	sources := make([]*entity.Source, 0, 16)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := `SELECT ` + sourceColumns + `
FROM sources
WHERE id = $1
LIMIT 1`
	src, err := scanSource(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return src, nil
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	query := `SELECT ` + sourceColumns + `
FROM sources
WHERE active = TRUE
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	return sources, nil
}

func (repo *SourceRepo) Create(ctx context.Context, source *entity.Source) error {
	if source.FetchStatus == "" {
		source.FetchStatus = entity.FetchStatusIdle
	}
	if source.HealthStatus == "" {
		source.HealthStatus = entity.HealthStatusHealthy
		source.HealthSuccessRate = 1
	}
	if source.RetentionStrategy == "" {
		source.RetentionStrategy = entity.RetentionDestroy
	}

	const query = `
INSERT INTO sources (
       name, feed_url, fetch_interval_seconds, active, fetch_status, next_fetch_at,
       health_status, health_success_rate,
       scraping_enabled, auto_scrape, scrape_max_in_flight,
       retention_days, max_items, retention_strategy)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		source.Name, source.FeedURL, int64(source.FetchInterval/time.Second), source.Active,
		string(source.FetchStatus), source.NextFetchAt,
		string(source.HealthStatus), source.HealthSuccessRate,
		source.ScrapingEnabled, source.AutoScrape, source.ScrapeMaxInFlight,
		source.RetentionDays, source.MaxItems, string(source.RetentionStrategy),
	).Scan(&source.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ClaimDue uses SKIP LOCKED so concurrent schedulers never claim the same row.
func (repo *SourceRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.Source, error) {
	query := `
UPDATE sources SET fetch_status = 'queued', updated_at = $1
WHERE id IN (
       SELECT id FROM sources
       WHERE active = TRUE
         AND fetch_status NOT IN ('queued', 'fetching')
         AND next_fetch_at IS NOT NULL AND next_fetch_at <= $1
         AND (fetch_circuit_open_until IS NULL OR fetch_circuit_open_until <= $1)
         AND NOT (health_status = 'auto_paused' AND auto_paused_until IS NOT NULL AND auto_paused_until > $1)
       ORDER BY next_fetch_at ASC
       LIMIT $2
       FOR UPDATE SKIP LOCKED)
RETURNING ` + sourceColumns
	rows, err := repo.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].NextFetchAt.Before(*sources[j].NextFetchAt)
	})
	return sources, nil
}

func (repo *SourceRepo) UpdateFetchStatus(ctx context.Context, id int64, status entity.FetchStatus) error {
	const query = `UPDATE sources SET fetch_status = $1, updated_at = now() WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, string(status), id); err != nil {
		return fmt.Errorf("UpdateFetchStatus: %w", err)
	}
	return nil
}

func (repo *SourceRepo) MarkFetching(ctx context.Context, id int64, startedAt time.Time) error {
	const query = `
UPDATE sources SET fetch_status = 'fetching', last_fetch_started_at = $1, updated_at = now()
WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, startedAt, id); err != nil {
		return fmt.Errorf("MarkFetching: %w", err)
	}
	return nil
}

// SaveFetchState never moves next_fetch_at before an active auto-pause deadline,
// which the health monitor may have written concurrently.
func (repo *SourceRepo) SaveFetchState(ctx context.Context, source *entity.Source) error {
	const query = `
UPDATE sources SET
       fetch_status             = $1,
       fetch_retry_attempt      = $2,
       fetch_circuit_open_until = $3,
       next_fetch_at            = GREATEST($4, CASE WHEN health_status = 'auto_paused' THEN auto_paused_until END),
       last_fetched_at          = $5,
       last_fetch_started_at    = $6,
       failure_count            = $7,
       last_error               = $8,
       etag                     = $9,
       last_modified            = $10,
       updated_at               = now()
WHERE id = $11`
	res, err := repo.db.ExecContext(ctx, query,
		string(source.FetchStatus), source.FetchRetryAttempt, source.FetchCircuitOpenUntil,
		source.NextFetchAt, source.LastFetchedAt, source.LastFetchStartedAt,
		source.FailureCount, source.LastError, source.ETag, source.LastModified,
		source.ID,
	)
	if err != nil {
		return fmt.Errorf("SaveFetchState: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("SaveFetchState: source %d: %w", source.ID, entity.ErrNotFound)
	}
	return nil
}

func (repo *SourceRepo) ListStalled(ctx context.Context, startedBefore time.Time, limit int) ([]*entity.Source, error) {
	query := `SELECT ` + sourceColumns + `
FROM sources
WHERE fetch_status = 'fetching'
  AND last_fetch_started_at < $1
ORDER BY last_fetch_started_at ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ListStalled: %w", err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("ListStalled: %w", err)
	}
	return sources, nil
}

// ListOrphanedQueued relies on updated_at being written by every status change.
func (repo *SourceRepo) ListOrphanedQueued(ctx context.Context, queuedBefore time.Time, limit int) ([]*entity.Source, error) {
	query := `SELECT ` + sourceColumns + `
FROM sources
WHERE fetch_status = 'queued'
  AND updated_at < $1
  AND NOT EXISTS (
       SELECT 1 FROM jobs j
       WHERE j.kind = 'fetch_source'
         AND j.failed_at IS NULL
         AND (j.payload->>'source_id')::bigint = sources.id)
ORDER BY updated_at ASC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, queuedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ListOrphanedQueued: %w", err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("ListOrphanedQueued: %w", err)
	}
	return sources, nil
}

// UpdateHealth serializes health mutations with SELECT ... FOR UPDATE.
// It returns (nil, nil) when the source does not exist.
func (repo *SourceRepo) UpdateHealth(ctx context.Context, id int64, fn func(*entity.Source) error) (*entity.Source, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateHealth: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + sourceColumns + `
FROM sources
WHERE id = $1
FOR UPDATE`
	src, err := scanSource(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateHealth: select: %w", err)
	}

	if err := fn(src); err != nil {
		return nil, err
	}

	window := src.HealthWindow
	if window == nil {
		window = []bool{}
	}
	const update = `
UPDATE sources SET
       health_status       = $1,
       health_window       = $2,
       health_success_rate = $3,
       auto_paused_until   = $4,
       next_fetch_at       = $5,
       updated_at          = now()
WHERE id = $6`
	if _, err := tx.ExecContext(ctx, update,
		string(src.HealthStatus), pq.BoolArray(window), src.HealthSuccessRate,
		src.AutoPausedUntil, src.NextFetchAt, src.ID,
	); err != nil {
		return nil, fmt.Errorf("UpdateHealth: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateHealth: commit: %w", err)
	}
	return src, nil
}

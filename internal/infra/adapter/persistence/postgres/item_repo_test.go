package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/infra/adapter/persistence/postgres"
	"feed-monitor/internal/repository"
)

var itemCols = []string{
	"id", "source_id", "guid", "content_fingerprint", "title", "url", "summary", "content",
	"published_at", "scrape_status", "scraped_at", "scraped_content", "created_at", "deleted_at",
}

/* ──────────────────────────────── 1. Get ──────────────────────────────── */

func TestItemRepo_Get_NullStatusIsNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM items i`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(
			int64(5), int64(1), "guid-5", "fp", "Title", "https://example.com/5", "", "",
			nil, nil, nil, "", created, nil,
		))

	got, err := postgres.NewItemRepo(db).Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, entity.ScrapeStatusNone, got.ScrapeStatus)
	assert.Equal(t, "guid-5", got.GUID)
	assert.True(t, created.Equal(got.CreatedAt))
}

/* ──────────────────────────────── 2. Upsert ──────────────────────────────── */

func TestItemRepo_Upsert(t *testing.T) {
	cases := []struct {
		name     string
		inserted bool
	}{
		{"new row", true},
		{"duplicate", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (source_id, dedup_key) DO UPDATE`)).
				WithArgs(int64(1), "g1", sqlmock.AnyArg(), "g1", "T", "https://example.com/a", "", "", nil).
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "inserted"}).
					AddRow(int64(10), time.Now(), tc.inserted))

			it := &entity.Item{SourceID: 1, GUID: "g1", Title: "T", URL: "https://example.com/a"}
			created, err := postgres.NewItemRepo(db).Upsert(context.Background(), it)
			require.NoError(t, err)
			assert.Equal(t, tc.inserted, created)
			assert.Equal(t, int64(10), it.ID)
			assert.NotEmpty(t, it.ContentFingerprint)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

/* ──────────────────────────────── 3. TransitionScrapeStatus ──────────────────────────────── */

func TestItemRepo_TransitionScrapeStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`scrape_status_at = now()`) + `(?s).*` + regexp.QuoteMeta(`scrape_status = ANY($3) OR ($4 AND scrape_status IS NULL)`)).
		WithArgs("pending", int64(3), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE items SET scrape_status`).
		WithArgs(nil, int64(3), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := postgres.NewItemRepo(db)
	ok, err := repo.TransitionScrapeStatus(context.Background(), 3,
		[]entity.ScrapeStatus{entity.ScrapeStatusNone, entity.ScrapeStatusFailed}, entity.ScrapeStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionScrapeStatus(context.Background(), 3,
		[]entity.ScrapeStatus{entity.ScrapeStatusPending}, entity.ScrapeStatusNone)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepo_CompleteScrape_RequiresProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`scrape_status_at = now\(\),(?s).*` + regexp.QuoteMeta(`WHERE id = $3 AND scrape_status = 'processing'`)).
		WithArgs("body", at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := postgres.NewItemRepo(db).CompleteScrape(context.Background(), 3, "body", at)
	require.NoError(t, err)
	assert.True(t, ok)
}

/* ──────────────────────────────── 4. CountInFlight / candidates ──────────────────────────────── */

func TestItemRepo_CountInFlight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`scrape_status IN ('pending', 'processing')`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := postgres.NewItemRepo(db).CountInFlight(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestItemRepo_ListScrapeCandidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now()
	mock.ExpectQuery(`JOIN sources s ON s.id = i.source_id.*s.auto_scrape = TRUE`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(int64(1), int64(1), "a", "fa", "", "", "", "", nil, nil, nil, "", now, nil).
			AddRow(int64(2), int64(1), "b", "fb", "", "", "", "", nil, nil, nil, "", now, nil))

	items, err := postgres.NewItemRepo(db).ListScrapeCandidates(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[1].GUID)
}

func TestItemRepo_ListStaleInFlight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cutoff := time.Date(2026, 1, 1, 11, 30, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`(i.scrape_status_at IS NULL OR i.scrape_status_at < $1)`)).
		WithArgs(cutoff, 50).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(
			int64(8), int64(1), "guid-8", "fp", "Stuck", "https://example.com/8", "", "",
			nil, "processing", nil, "", created, nil,
		))

	items, err := postgres.NewItemRepo(db).ListStaleInFlight(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entity.ScrapeStatusProcessing, items[0].ScrapeStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── 5. Prune ──────────────────────────────── */

func TestItemRepo_Prune(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("noop without criteria", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		n, err := postgres.NewItemRepo(db).Prune(context.Background(), 1, repository.PruneCriteria{})
		require.NoError(t, err)
		assert.Zero(t, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("destroy by age and count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`DELETE FROM items.*created_at < \$2 OR id NOT IN .*LIMIT \$3`).
			WithArgs(int64(1), older, 50).
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := postgres.NewItemRepo(db).Prune(context.Background(), 1, repository.PruneCriteria{
			OlderThan: &older, KeepNewest: 50, Strategy: entity.RetentionDestroy,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("soft delete by count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`UPDATE items SET deleted_at = now\(\).*LIMIT \$2`).
			WithArgs(int64(1), 10).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := postgres.NewItemRepo(db).Prune(context.Background(), 1, repository.PruneCriteria{
			KeepNewest: 10, Strategy: entity.RetentionSoftDelete,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

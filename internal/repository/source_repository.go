package repository

import (
	"context"
	"time"

	"feed-monitor/internal/domain/entity"
)

// SourceRepository persists sources and their fetch/health state.
//
// Fetch columns are written by the fetch use case while it holds the source's
// advisory lock. Health columns are written by the health monitor, which is
// not covered by that lock, so UpdateHealth must run its mutation under a row lock.
type SourceRepository interface {
	// Get returns (nil, nil) when the source does not exist.
	Get(ctx context.Context, id int64) (*entity.Source, error)
	ListActive(ctx context.Context) ([]*entity.Source, error)
	Create(ctx context.Context, source *entity.Source) error

	// ClaimDue atomically flips up to limit due sources to queued and returns them
	// ordered by next_fetch_at ascending. Sources already queued or fetching,
	// circuit-open or auto-paused at now are never returned.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.Source, error)

	UpdateFetchStatus(ctx context.Context, id int64, status entity.FetchStatus) error
	MarkFetching(ctx context.Context, id int64, startedAt time.Time) error
	// SaveFetchState writes every fetch scheduling column of source.
	SaveFetchState(ctx context.Context, source *entity.Source) error

	// ListStalled returns sources stuck in fetching that started before startedBefore.
	ListStalled(ctx context.Context, startedBefore time.Time, limit int) ([]*entity.Source, error)

	// ListOrphanedQueued returns sources queued since before queuedBefore that
	// have no unfinished fetch job left to run them.
	ListOrphanedQueued(ctx context.Context, queuedBefore time.Time, limit int) ([]*entity.Source, error)

	// UpdateHealth loads the source under a row lock, applies fn and persists
	// the health columns. The updated source is returned.
	UpdateHealth(ctx context.Context, id int64, fn func(*entity.Source) error) (*entity.Source, error)
}

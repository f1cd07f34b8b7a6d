package repository

import (
	"context"
	"time"

	"feed-monitor/internal/domain/entity"
)

// JobQueue is a durable queue of delayed jobs shared by every worker process.
type JobQueue interface {
	Enqueue(ctx context.Context, job *entity.Job) error

	// Claim locks up to limit runnable jobs (run_at <= now) for workerID.
	// A job claimed by one worker is invisible to others until released.
	Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*entity.Job, error)

	Complete(ctx context.Context, id string) error

	// Fail records the error. A non-nil retryAt releases the job to run again
	// at that time; nil marks it permanently failed.
	Fail(ctx context.Context, id string, errMsg string, retryAt *time.Time) error

	// ReleaseStale unlocks jobs whose worker died before finishing them.
	ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error)
}

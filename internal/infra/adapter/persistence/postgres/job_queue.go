package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

type JobQueue struct{ db *sql.DB }

func NewJobQueue(db *sql.DB) repository.JobQueue {
	return &JobQueue{db: db}
}

func (q *JobQueue) Enqueue(ctx context.Context, job *entity.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload := []byte(job.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	const query = `
INSERT INTO jobs (id, kind, payload, run_at, attempts)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := q.db.ExecContext(ctx, query, job.ID, string(job.Kind), payload, job.RunAt, job.Attempts); err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// Claim locks runnable jobs with SKIP LOCKED so concurrent workers never
// receive the same job.
func (q *JobQueue) Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*entity.Job, error) {
	const query = `
UPDATE jobs SET locked_at = $1, locked_by = $2, attempts = attempts + 1
WHERE id IN (
       SELECT id FROM jobs
       WHERE locked_at IS NULL
         AND failed_at IS NULL
         AND run_at <= $1
       ORDER BY run_at ASC
       LIMIT $3
       FOR UPDATE SKIP LOCKED)
RETURNING id, kind, payload, run_at, attempts, locked_at, locked_by, last_error, created_at`
	rows, err := q.db.QueryContext(ctx, query, now, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*entity.Job, 0, limit)
	for rows.Next() {
		var (
			j        entity.Job
			kind     string
			payload  []byte
			lockedBy sql.NullString
		)
		if err := rows.Scan(&j.ID, &kind, &payload, &j.RunAt, &j.Attempts, &j.LockedAt, &lockedBy, &j.LastError, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("Claim: %w", err)
		}
		j.Kind = entity.JobKind(kind)
		j.Payload = payload
		j.LockedBy = lockedBy.String
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	return jobs, nil
}

func (q *JobQueue) Complete(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

func (q *JobQueue) Fail(ctx context.Context, id string, errMsg string, retryAt *time.Time) error {
	var err error
	if retryAt != nil {
		const query = `
UPDATE jobs SET locked_at = NULL, locked_by = NULL, last_error = $1, run_at = $2
WHERE id = $3`
		_, err = q.db.ExecContext(ctx, query, errMsg, *retryAt, id)
	} else {
		const query = `
UPDATE jobs SET locked_at = NULL, locked_by = NULL, last_error = $1, failed_at = now()
WHERE id = $2`
		_, err = q.db.ExecContext(ctx, query, errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("Fail: %w", err)
	}
	return nil
}

func (q *JobQueue) ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	const query = `
UPDATE jobs SET locked_at = NULL, locked_by = NULL
WHERE locked_at IS NOT NULL AND locked_at < $1 AND failed_at IS NULL`
	res, err := q.db.ExecContext(ctx, query, lockedBefore)
	if err != nil {
		return 0, fmt.Errorf("ReleaseStale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ReleaseStale: %w", err)
	}
	return n, nil
}

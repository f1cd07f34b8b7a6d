// Package memory holds in-process repository adapters for single-process
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

type memJob struct {
	job    entity.Job
	failed bool
}

// JobQueue is a mutex-guarded JobQueue. Jobs are lost when the process exits.
type JobQueue struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	seq  []string // insertion order, for stable claims among equal run_at
}

var _ repository.JobQueue = (*JobQueue)(nil)

func NewJobQueue() *JobQueue {
	return &JobQueue{jobs: make(map[string]*memJob)}
}

func (q *JobQueue) Enqueue(_ context.Context, job *entity.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := *job
	if len(stored.Payload) == 0 {
		stored.Payload = []byte("{}")
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if _, exists := q.jobs[job.ID]; !exists {
		q.seq = append(q.seq, job.ID)
	}
	q.jobs[job.ID] = &memJob{job: stored}
	return nil
}

func (q *JobQueue) Claim(_ context.Context, workerID string, now time.Time, limit int) ([]*entity.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var runnable []*memJob
	for _, id := range q.seq {
		j, ok := q.jobs[id]
		if !ok || j.failed || j.job.LockedAt != nil || j.job.RunAt.After(now) {
			continue
		}
		runnable = append(runnable, j)
	}
	sort.SliceStable(runnable, func(a, b int) bool {
		return runnable[a].job.RunAt.Before(runnable[b].job.RunAt)
	})
	if limit > 0 && len(runnable) > limit {
		runnable = runnable[:limit]
	}

	out := make([]*entity.Job, 0, len(runnable))
	for _, j := range runnable {
		lockedAt := now
		j.job.LockedAt = &lockedAt
		j.job.LockedBy = workerID
		j.job.Attempts++
		claimed := j.job
		out = append(out, &claimed)
	}
	return out, nil
}

func (q *JobQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.jobs, id)
	for i, sid := range q.seq {
		if sid == id {
			q.seq = append(q.seq[:i], q.seq[i+1:]...)
			break
		}
	}
	return nil
}

func (q *JobQueue) Fail(_ context.Context, id string, errMsg string, retryAt *time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil
	}
	j.job.LockedAt = nil
	j.job.LockedBy = ""
	j.job.LastError = errMsg
	if retryAt != nil {
		j.job.RunAt = *retryAt
	} else {
		j.failed = true
	}
	return nil
}

func (q *JobQueue) ReleaseStale(_ context.Context, lockedBefore time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, j := range q.jobs {
		if j.failed || j.job.LockedAt == nil || !j.job.LockedAt.Before(lockedBefore) {
			continue
		}
		j.job.LockedAt = nil
		j.job.LockedBy = ""
		n++
	}
	return n, nil
}

// Get returns a copy of the job with id, and whether it is permanently failed.
func (q *JobQueue) Get(id string) (*entity.Job, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil, false, false
	}
	cp := j.job
	return &cp, j.failed, true
}

// Len returns the number of jobs still stored, failed ones included.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

package fetch_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

/* ───────── test doubles ───────── */

// stubSourceRepo is an in-memory SourceRepository.
type stubSourceRepo struct {
	mu      sync.Mutex
	sources map[int64]*entity.Source

	getErr   error
	saveErr  error
	statuses []entity.FetchStatus // every UpdateFetchStatus call, in order
	saves    int

	// orphaned maps source IDs to the time they were left queued without a job
	orphaned map[int64]time.Time
}

func newStubSourceRepo(sources ...*entity.Source) *stubSourceRepo {
	r := &stubSourceRepo{sources: make(map[int64]*entity.Source)}
	for _, s := range sources {
		r.sources[s.ID] = s
	}
	return r
}

func (r *stubSourceRepo) snapshot(id int64) *entity.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return nil
	}
	cp := *src
	return &cp
}

func (r *stubSourceRepo) Get(_ context.Context, id int64) (*entity.Source, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.snapshot(id), nil
}

func (r *stubSourceRepo) ListActive(_ context.Context) ([]*entity.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Source
	for _, s := range r.sources {
		if s.Active {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *stubSourceRepo) Create(_ context.Context, s *entity.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sources[s.ID] = &cp
	return nil
}

func (r *stubSourceRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]*entity.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*entity.Source
	for _, s := range r.sources {
		if !s.Active || s.NextFetchAt == nil || s.NextFetchAt.After(now) {
			continue
		}
		if s.CircuitOpen(now) || s.AutoPaused(now) {
			continue
		}
		if s.FetchStatus == entity.FetchStatusQueued || s.FetchStatus == entity.FetchStatusFetching {
			continue
		}
		due = append(due, s)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextFetchAt.Before(*due[j].NextFetchAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*entity.Source, 0, len(due))
	for _, s := range due {
		s.FetchStatus = entity.FetchStatusQueued
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *stubSourceRepo) UpdateFetchStatus(_ context.Context, id int64, status entity.FetchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	if s, ok := r.sources[id]; ok {
		s.FetchStatus = status
	}
	return nil
}

func (r *stubSourceRepo) MarkFetching(_ context.Context, id int64, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sources[id]; ok {
		s.FetchStatus = entity.FetchStatusFetching
		s.LastFetchStartedAt = &startedAt
	}
	return nil
}

func (r *stubSourceRepo) SaveFetchState(_ context.Context, src *entity.Source) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	cp := *src
	r.sources[src.ID] = &cp
	return nil
}

func (r *stubSourceRepo) ListStalled(_ context.Context, startedBefore time.Time, limit int) ([]*entity.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Source
	for _, s := range r.sources {
		if s.FetchStatus == entity.FetchStatusFetching &&
			s.LastFetchStartedAt != nil && s.LastFetchStartedAt.Before(startedBefore) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubSourceRepo) ListOrphanedQueued(_ context.Context, queuedBefore time.Time, limit int) ([]*entity.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Source
	for id, at := range r.orphaned {
		s, ok := r.sources[id]
		if ok && s.FetchStatus == entity.FetchStatusQueued && at.Before(queuedBefore) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubSourceRepo) UpdateHealth(_ context.Context, id int64, fn func(*entity.Source) error) (*entity.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[id]
	if !ok {
		return nil, nil
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

var _ repository.SourceRepository = (*stubSourceRepo)(nil)

// stubJobQueue records enqueued jobs.
type stubJobQueue struct {
	mu         sync.Mutex
	jobs       []*entity.Job
	enqueueErr error
}

func (q *stubJobQueue) Enqueue(_ context.Context, job *entity.Job) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubJobQueue) Claim(context.Context, string, time.Time, int) ([]*entity.Job, error) {
	return nil, nil
}
func (q *stubJobQueue) Complete(context.Context, string) error { return nil }
func (q *stubJobQueue) Fail(context.Context, string, string, *time.Time) error {
	return nil
}
func (q *stubJobQueue) ReleaseStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (q *stubJobQueue) enqueued() []*entity.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*entity.Job(nil), q.jobs...)
}

var _ repository.JobQueue = (*stubJobQueue)(nil)

// stubFetcher returns a canned result and counts calls.
type stubFetcher struct {
	mu     sync.Mutex
	calls  int
	result *entity.FetchResult
	err    error
	hook   func(ctx context.Context) // runs inside Fetch when set
}

func (f *stubFetcher) Fetch(ctx context.Context, _ *entity.Source) (*entity.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubPruner struct {
	calls    int
	strategy entity.RetentionStrategy
	err      error
}

func (p *stubPruner) Prune(_ context.Context, _ *entity.Source, strategy entity.RetentionStrategy) (int64, error) {
	p.calls++
	p.strategy = strategy
	return 2, p.err
}

type stubScrapeEnqueuer struct {
	items []int64
	err   error
}

func (e *stubScrapeEnqueuer) Enqueue(_ context.Context, item *entity.Item, _ *entity.Source, _ string) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	e.items = append(e.items, item.ID)
	return true, nil
}

var errBoom = errors.New("boom")

// stubItemRepo is an ItemRepository keyed by dedup key.
type stubItemRepo struct {
	byKey     map[string]*entity.Item
	nextID    int64
	upsertErr map[string]error // by URL
	pruned    []repository.PruneCriteria
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{byKey: make(map[string]*entity.Item)}
}

func (r *stubItemRepo) Get(context.Context, int64) (*entity.Item, error) { return nil, nil }

func (r *stubItemRepo) Upsert(_ context.Context, item *entity.Item) (bool, error) {
	if err := r.upsertErr[item.URL]; err != nil {
		return false, err
	}
	key := item.DedupKey()
	if existing, ok := r.byKey[key]; ok {
		item.ID = existing.ID
		return false, nil
	}
	r.nextID++
	item.ID = r.nextID
	r.byKey[key] = item
	return true, nil
}

func (r *stubItemRepo) TransitionScrapeStatus(context.Context, int64, []entity.ScrapeStatus, entity.ScrapeStatus) (bool, error) {
	return false, nil
}
func (r *stubItemRepo) CompleteScrape(context.Context, int64, string, time.Time) (bool, error) {
	return false, nil
}
func (r *stubItemRepo) CountInFlight(context.Context, int64) (int, error) { return 0, nil }
func (r *stubItemRepo) ListScrapeCandidates(context.Context, int) ([]*entity.Item, error) {
	return nil, nil
}

func (r *stubItemRepo) ListStaleInFlight(context.Context, time.Time, int) ([]*entity.Item, error) {
	return nil, nil
}

func (r *stubItemRepo) Prune(_ context.Context, _ int64, c repository.PruneCriteria) (int64, error) {
	r.pruned = append(r.pruned, c)
	return 3, nil
}

var _ repository.ItemRepository = (*stubItemRepo)(nil)

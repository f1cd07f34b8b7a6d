package scraping_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

/* ───────── test doubles ───────── */

// memItems is an ItemRepository with compare-and-swap status updates.
type memItems struct {
	mu          sync.Mutex
	items       map[int64]*entity.Item
	completeErr error
	countErr    error

	// statusAt is when each item's scrape status last changed; missing means long ago
	statusAt map[int64]time.Time
}

func newMemItems(items ...*entity.Item) *memItems {
	m := &memItems{items: make(map[int64]*entity.Item), statusAt: make(map[int64]time.Time)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *memItems) status(id int64) entity.ScrapeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].ScrapeStatus
}

func (m *memItems) Get(_ context.Context, id int64) (*entity.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) Upsert(context.Context, *entity.Item) (bool, error) { return false, nil }

func (m *memItems) TransitionScrapeStatus(_ context.Context, id int64, from []entity.ScrapeStatus, to entity.ScrapeStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || !slices.Contains(from, it.ScrapeStatus) {
		return false, nil
	}
	it.ScrapeStatus = to
	m.statusAt[id] = time.Now()
	return true, nil
}

func (m *memItems) CompleteScrape(_ context.Context, id int64, content string, at time.Time) (bool, error) {
	if m.completeErr != nil {
		return false, m.completeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.ScrapeStatus != entity.ScrapeStatusProcessing {
		return false, nil
	}
	it.ScrapeStatus = entity.ScrapeStatusSuccess
	it.ScrapedContent = content
	it.ScrapedAt = &at
	m.statusAt[id] = at
	return true, nil
}

func (m *memItems) CountInFlight(_ context.Context, sourceID int64) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.SourceID == sourceID && it.ScrapeStatus.InFlight() {
			n++
		}
	}
	return n, nil
}

// ListScrapeCandidates ignores source flags; the scheduler re-checks them.
func (m *memItems) ListScrapeCandidates(_ context.Context, limit int) ([]*entity.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Item
	for _, it := range m.items {
		if it.ScrapedAt == nil && it.ScrapeStatus == entity.ScrapeStatusNone {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memItems) ListStaleInFlight(_ context.Context, changedBefore time.Time, limit int) ([]*entity.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Item
	for id, it := range m.items {
		if it.ScrapeStatus.InFlight() && m.statusAt[id].Before(changedBefore) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memItems) Prune(context.Context, int64, repository.PruneCriteria) (int64, error) {
	return 0, nil
}

var _ repository.ItemRepository = (*memItems)(nil)

// sourceGetter implements the SourceRepository.Get used by the scheduler.
type sourceGetter struct {
	repository.SourceRepository
	sources map[int64]*entity.Source
}

func (s *sourceGetter) Get(_ context.Context, id int64) (*entity.Source, error) {
	return s.sources[id], nil
}

type jobRecorder struct {
	repository.JobQueue
	jobs []*entity.Job
	err  error
}

func (j *jobRecorder) Enqueue(_ context.Context, job *entity.Job) error {
	if j.err != nil {
		return j.err
	}
	j.jobs = append(j.jobs, job)
	return nil
}

type scraperFunc func(ctx context.Context, item *entity.Item) (string, error)

func (f scraperFunc) Scrape(ctx context.Context, item *entity.Item) (string, error) {
	return f(ctx, item)
}

var errBoom = errors.New("boom")

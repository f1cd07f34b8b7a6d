package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/handler/http/admin"
	"feed-monitor/internal/handler/http/requestid"
	"feed-monitor/internal/usecase/health"
)

/* ───────── 1. Stubs ───────── */

type stubSources struct {
	sources map[int64]*entity.Source
	err     error
}

func (s *stubSources) Get(_ context.Context, id int64) (*entity.Source, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sources[id], nil
}

type enqueueCall struct {
	id    int64
	force bool
}

type stubFetches struct {
	calls []enqueueCall
	err   error
}

func (s *stubFetches) Enqueue(_ context.Context, id int64, force bool) error {
	s.calls = append(s.calls, enqueueCall{id, force})
	return s.err
}

type stubReset struct {
	src *entity.Source
	err error
}

func (s *stubReset) Call(_ context.Context, id int64) (*entity.Source, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.src
	out.ID = id
	out.HealthStatus = entity.HealthStatusHealthy
	return &out, nil
}

type stubRunner struct {
	count     int
	err       error
	lastLimit int
}

func (s *stubRunner) Run(_ context.Context, limit int) (int, error) {
	s.lastLimit = limit
	return s.count, s.err
}

type fixture struct {
	sources  *stubSources
	fetches  *stubFetches
	reset    *stubReset
	fetchRun *stubRunner
	scrape   *stubRunner
	recon    *stubRunner
	sweep    *stubRunner
	handler  http.Handler
}

func newFixture() *fixture {
	next := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &entity.Source{
		ID:           7,
		Name:         "Go Blog",
		FeedURL:      "https://go.dev/blog/feed.atom",
		Active:       true,
		FetchStatus:  entity.FetchStatusIdle,
		NextFetchAt:  &next,
		HealthStatus: entity.HealthStatusWarning,
		HealthWindow: []bool{true, false, false},
	}
	f := &fixture{
		sources:  &stubSources{sources: map[int64]*entity.Source{7: src}},
		fetches:  &stubFetches{},
		reset:    &stubReset{src: src},
		fetchRun: &stubRunner{count: 3},
		scrape:   &stubRunner{count: 1},
		recon:    &stubRunner{count: 0},
		sweep:    &stubRunner{count: 2},
	}
	f.handler = admin.NewRouter(admin.Deps{
		Sources:          f.sources,
		Fetches:          f.fetches,
		HealthReset:      f.reset,
		FetchScheduler:   f.fetchRun,
		ScrapeScheduler:  f.scrape,
		Reconciler:       f.recon,
		ScrapeReconciler: f.sweep,
		DefaultLimit:     50,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

/* ───────── 2. Sources ───────── */

func TestGetSource(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/sources/7")
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[admin.SourceDTO](t, rec)
	assert.Equal(t, int64(7), dto.ID)
	assert.Equal(t, "idle", dto.FetchStatus)
	assert.Equal(t, "warning", dto.HealthStatus)
	assert.Equal(t, 3, dto.HealthSamples)
	assert.Equal(t, int64(3600), dto.FetchIntervalSeconds)
	assert.NotEmpty(t, rec.Header().Get(requestid.Header))
}

func TestGetSource_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		storeErr error
		wantCode int
		wantMsg  string
	}{
		{"unknown id", "/sources/99", nil, http.StatusNotFound, "source not found"},
		{"non numeric id", "/sources/abc", nil, http.StatusBadRequest, "invalid source id"},
		{"zero id", "/sources/0", nil, http.StatusBadRequest, "invalid source id"},
		{"store failure", "/sources/7", errors.New("connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sources.err = tt.storeErr

			rec := f.do(http.MethodGet, tt.path)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

/* ───────── 3. Manual fetch ───────── */

func TestTriggerFetch(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantForce bool
	}{
		{"default", "", false},
		{"forced", "?force=true", true},
		{"explicit false", "?force=0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			rec := f.do(http.MethodPost, "/sources/7/fetch"+tt.query)
			require.Equal(t, http.StatusAccepted, rec.Code)

			resp := decode[admin.FetchQueuedResponse](t, rec)
			assert.True(t, resp.Queued)
			assert.Equal(t, tt.wantForce, resp.Force)
			assert.Equal(t, []enqueueCall{{7, tt.wantForce}}, f.fetches.calls)
		})
	}
}

func TestTriggerFetch_InvalidForce(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/sources/7/fetch?force=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.fetches.calls)
}

func TestTriggerFetch_UnknownSource(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/sources/42/fetch")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.fetches.calls)
}

func TestTriggerFetch_EnqueueFailure(t *testing.T) {
	f := newFixture()
	f.fetches.err = errors.New("queue unavailable")

	rec := f.do(http.MethodPost, "/sources/7/fetch")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "queue unavailable")
}

func TestTriggerFetch_RejectsGet(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/sources/7/fetch")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

/* ───────── 4. Health reset ───────── */

func TestResetHealth(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/sources/7/health/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[admin.SourceDTO](t, rec).HealthStatus)
}

func TestResetHealth_NotFound(t *testing.T) {
	f := newFixture()
	f.reset.err = health.ErrSourceNotFound

	rec := f.do(http.MethodPost, "/sources/7/health/reset")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

/* ───────── 5. Manual runs ───────── */

func TestRunBatch(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		runner     func(f *fixture) *stubRunner
		wantRunner string
		wantLimit  int
	}{
		{"fetch scheduler default limit", "/scheduler/run", func(f *fixture) *stubRunner { return f.fetchRun }, "fetch_scheduler", 50},
		{"fetch scheduler explicit limit", "/scheduler/run?limit=5", func(f *fixture) *stubRunner { return f.fetchRun }, "fetch_scheduler", 5},
		{"scrape scheduler", "/scraping/run", func(f *fixture) *stubRunner { return f.scrape }, "scrape_scheduler", 50},
		{"reconciler", "/reconciler/run?limit=10", func(f *fixture) *stubRunner { return f.recon }, "reconciler", 10},
		{"scrape reconciler", "/scraping/reconcile", func(f *fixture) *stubRunner { return f.sweep }, "scrape_reconciler", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			runner := tt.runner(f)

			rec := f.do(http.MethodPost, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			resp := decode[admin.RunResponse](t, rec)
			assert.Equal(t, tt.wantRunner, resp.Runner)
			assert.Equal(t, runner.count, resp.Count)
			assert.Equal(t, tt.wantLimit, runner.lastLimit)
		})
	}
}

func TestRunBatch_InvalidLimit(t *testing.T) {
	for _, q := range []string{"0", "-3", "abc", "10001"} {
		t.Run(q, func(t *testing.T) {
			f := newFixture()

			rec := f.do(http.MethodPost, "/scheduler/run?limit="+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, f.fetchRun.lastLimit)
		})
	}
}

func TestRunBatch_RunnerFailure(t *testing.T) {
	f := newFixture()
	f.recon.err = errors.New("lock table missing")

	rec := f.do(http.MethodPost, "/reconciler/run")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunBatch_DisabledRouteIs404(t *testing.T) {
	h := admin.NewRouter(admin.Deps{
		Sources:     &stubSources{},
		Fetches:     &stubFetches{},
		HealthReset: &stubReset{},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scraping/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

/* ───────── 6. Request ID ───────── */

func TestRouter_EchoesRequestID(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/sources/7", nil)
	req.Header.Set(requestid.Header, "req-abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc-123", rec.Header().Get(requestid.Header))
}

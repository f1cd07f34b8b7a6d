// Package admin is the operator HTTP API of the worker: manual fetches,
// health resets and on-demand scheduler runs.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/handler/http/requestid"
	"feed-monitor/internal/observability/tracing"
)

// SourceReader loads a source by ID, returning (nil, nil) when it does not exist.
type SourceReader interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
}

// FetchEnqueuer queues a fetch job for a source.
type FetchEnqueuer interface {
	Enqueue(ctx context.Context, sourceID int64, force bool) error
}

// HealthResetter returns a source to healthy.
type HealthResetter interface {
	Call(ctx context.Context, sourceID int64) (*entity.Source, error)
}

// BatchRunner is a periodic job that can also be triggered on demand.
type BatchRunner interface {
	Run(ctx context.Context, limit int) (int, error)
}

// Deps are the use cases behind the routes. A nil runner disables its route.
type Deps struct {
	Sources          SourceReader
	Fetches          FetchEnqueuer
	HealthReset      HealthResetter
	FetchScheduler   BatchRunner
	ScrapeScheduler  BatchRunner
	Reconciler       BatchRunner
	ScrapeReconciler BatchRunner

	// DefaultLimit is used when a run request has no ?limit.
	DefaultLimit int
	Logger       *slog.Logger
}

// NewRouter builds the admin routes:
//
//	GET  /sources/{id}
//	POST /sources/{id}/fetch?force=true
//	POST /sources/{id}/health/reset
//	POST /scheduler/run?limit=N
//	POST /scraping/run?limit=N
//	POST /reconciler/run?limit=N
//	POST /scraping/reconcile?limit=N
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 100
	}
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(requestid.Middleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(instrument)

	r.Route("/sources/{id}", func(r chi.Router) {
		r.Get("/", h.getSource)
		r.Post("/fetch", h.triggerFetch)
		r.Post("/health/reset", h.resetHealth)
	})
	if deps.FetchScheduler != nil {
		r.Post("/scheduler/run", h.runBatch("fetch_scheduler", deps.FetchScheduler))
	}
	if deps.ScrapeScheduler != nil {
		r.Post("/scraping/run", h.runBatch("scrape_scheduler", deps.ScrapeScheduler))
	}
	if deps.Reconciler != nil {
		r.Post("/reconciler/run", h.runBatch("reconciler", deps.Reconciler))
	}
	if deps.ScrapeReconciler != nil {
		r.Post("/scraping/reconcile", h.runBatch("scrape_reconciler", deps.ScrapeReconciler))
	}
	return r
}

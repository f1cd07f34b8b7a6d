package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer is the single HTTP listener of the worker process.
// It serves:
//   - GET /health: liveness probe (always 200)
//   - GET /health/ready: readiness probe (200 when ready, 503 otherwise)
//   - GET /metrics: Prometheus scrape endpoint
//   - everything else: the admin routes passed to NewHealthServer
//
// The server shuts down gracefully when the context given to Start is cancelled.
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	admin   http.Handler
	isReady *atomic.Bool
	server  *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthServer creates a server listening on addr. admin may be nil.
func NewHealthServer(addr string, admin http.Handler, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{
		addr:    addr,
		logger:  logger,
		admin:   admin,
		isReady: &atomic.Bool{},
	}
}

// Handler returns the routing tree served by Start.
func (h *HealthServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.handleLiveness)
	r.Get("/health/ready", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())
	if h.admin != nil {
		r.Mount("/", h.admin)
	}
	return r
}

// Start serves until ctx is cancelled or the listener fails.
// It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("http server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("http server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("http server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("http server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		h.logger.Error("http server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeStatus(w, http.StatusOK, "ok")
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeStatus(w, http.StatusOK, "ok")
		return
	}
	h.writeStatus(w, http.StatusServiceUnavailable, "not ready")
}

func (h *HealthServer) writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: status}); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

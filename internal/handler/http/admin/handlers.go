package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/handler/http/respond"
	"feed-monitor/internal/observability/logging"
)

const maxRunLimit = 10000

type handler struct {
	deps Deps
}

var errSourceNotFound = respond.NewAppError(http.StatusNotFound, "source not found", nil)

func sourceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, respond.NewAppError(http.StatusBadRequest, "invalid source id", err)
	}
	return id, nil
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Error(w, logging.FromContext(r.Context()), err)
}

// loadSource resolves {id} to an existing source.
func (h *handler) loadSource(r *http.Request) (*entity.Source, error) {
	id, err := sourceID(r)
	if err != nil {
		return nil, err
	}
	src, err := h.deps.Sources.Get(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	if src == nil {
		return nil, errSourceNotFound
	}
	return src, nil
}

func (h *handler) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.loadSource(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toSourceDTO(src))
}

// triggerFetch queues a fetch. force=true bypasses an open circuit.
func (h *handler) triggerFetch(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, respond.NewAppError(http.StatusBadRequest, "invalid force flag", err))
			return
		}
		force = b
	}

	src, err := h.loadSource(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Fetches.Enqueue(r.Context(), src.ID, force); err != nil {
		h.fail(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("manual fetch queued",
		"source_id", src.ID, "force", force)
	respond.JSON(w, http.StatusAccepted, FetchQueuedResponse{SourceID: src.ID, Force: force, Queued: true})
}

func (h *handler) resetHealth(w http.ResponseWriter, r *http.Request) {
	id, err := sourceID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	src, err := h.deps.HealthReset.Call(r.Context(), id)
	if errors.Is(err, entity.ErrNotFound) {
		h.fail(w, r, errSourceNotFound)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toSourceDTO(src))
}

func (h *handler) runBatch(name string, runner BatchRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := h.deps.DefaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxRunLimit {
				h.fail(w, r, respond.NewAppError(http.StatusBadRequest,
					fmt.Sprintf("limit must be between 1 and %d", maxRunLimit), err))
				return
			}
			limit = n
		}

		count, err := runner.Run(r.Context(), limit)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%s: %w", name, err))
			return
		}
		logging.FromContext(r.Context()).Info("manual run finished",
			"runner", name, "count", count)
		respond.JSON(w, http.StatusOK, RunResponse{Runner: name, Count: count})
	}
}

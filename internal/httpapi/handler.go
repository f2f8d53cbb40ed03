package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/containerpath"
	"kuwaiba/osp-core/internal/db"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/midspan"
	"kuwaiba/osp-core/internal/portsync"
	"kuwaiba/osp-core/internal/treelayout"
)

// Deps wires the handler. Pool is only used for readiness; Store may be the
// Postgres queries or the in-memory inventory.
type Deps struct {
	Pool     *db.Pool
	Store    connectivity.Store
	Metadata connectivity.Metadata
	Metrics  *metrics.Metrics
	Layout   treelayout.Options
	Sessions *midspan.Registry
	PortSync *portsync.Syncer
}

type Handler struct {
	log      zerolog.Logger
	pool     *db.Pool
	store    connectivity.Store
	meta     connectivity.Metadata
	model    *connectivity.Model
	metrics  *metrics.Metrics
	sessions *midspan.Registry
	paths    *containerpath.Creator
	ports    *portsync.Syncer
}

func NewHandler(log zerolog.Logger, deps Deps) *Handler {
	h := &Handler{
		log:     log,
		pool:    deps.Pool,
		store:   deps.Store,
		meta:    deps.Metadata,
		metrics: deps.Metrics,
		ports:   deps.PortSync,
	}
	if deps.Store != nil {
		h.model = connectivity.NewModel(deps.Store, log)
		h.paths = containerpath.NewCreator(log, deps.Store, deps.Metrics)
		h.sessions = deps.Sessions
		if h.sessions == nil {
			h.sessions = midspan.NewRegistry(midspan.Deps{
				Store:    deps.Store,
				Metadata: deps.Metadata,
				Log:      log,
				Metrics:  deps.Metrics,
				Layout:   deps.Layout,
			}, 0)
		}
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.handleOpenSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetSession)
					r.Delete("/", h.handleCloseSession)
					r.Put("/mode", h.handleSetMode)
					r.Put("/leftover", h.handleSetLeftover)
					r.Put("/exchange", h.handleSetExchange)
					r.Post("/edges", h.handleCompleteEdge)
					r.Post("/release", h.handleRelease)
					r.Post("/refresh", h.handleRefresh)
					r.Post("/nodes/expand", h.handleExpand)
					r.Post("/nodes/collapse", h.handleCollapse)
					r.Post("/nodes/toggle", h.handleToggle)
				})
			})

			r.Route("/paths", func(r chi.Router) {
				r.Post("/", h.handleCreatePath)
				r.Post("/validate", h.handleValidatePath)
				r.Post("/shared", h.handleSharedContainers)
			})

			r.Post("/devices/{class}/{id}/ports/sync", h.handlePortSync)
		})
	})

	return r
}

// accessLog logs each request and records it in the HTTP metrics under its
// route pattern.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, pattern, status, time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

// writeDomainError maps an engine error onto the error envelope. Lookups are
// checked before persistence failures since stores wrap ErrNotFound.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	if ve, ok := connectivity.AsValidation(err); ok {
		var details map[string]any
		if ve.Subject != nil {
			details = map[string]any{"subject": ve.Subject}
		}
		h.writeError(w, http.StatusConflict, ve.Code, ve.Message, details)
		return
	}
	switch {
	case errors.Is(err, midspan.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "session_not_found", "session not found", nil)
	case errors.Is(err, connectivity.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, portsync.ErrNoAddress):
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case connectivity.IsPersistence(err):
		h.log.Error().Err(err).Str("op", op).Msg("store operation failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to "+op, nil)
	default:
		h.log.Error().Err(err).Str("op", op).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+op, nil)
	}
}

func (h *Handler) badBody(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) ensureStore(w http.ResponseWriter) bool {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "inventory store not configured", nil)
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "inventory store not configured", nil)
		return
	}
	if h.pool == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "store": "memory"})
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "store": "postgres"})
}

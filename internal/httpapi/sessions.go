package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/midspan"
)

type sessionOpen struct {
	Location connectivity.Ref `json:"location"`
	Device   connectivity.Ref `json:"device"`
	Cable    connectivity.Ref `json:"cable"`
}

type modeUpdate struct {
	Mode string `json:"mode"`
}

type leftoverUpdate struct {
	Show bool `json:"show"`
}

type exchangeUpdate struct {
	Exchange bool `json:"exchange"`
}

type edgeComplete struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type edgeRelease struct {
	Port  string `json:"port"`
	Fiber string `json:"fiber"`
}

type nodeRef struct {
	Key string `json:"key"`
}

func missingRef(r connectivity.Ref) bool {
	return r.Class == "" || r.ID == ""
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionOpen
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if missingRef(req.Location) || missingRef(req.Device) || missingRef(req.Cable) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "location, device and cable are required", nil)
		return
	}
	if !h.ensureStore(w) {
		return
	}

	v, err := h.sessions.Open(r.Context(), req.Location, req.Device, req.Cable)
	if err != nil {
		h.writeDomainError(w, "open session", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, v)
}

// withSession runs fn on the session named in the URL and writes the view.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, s *midspan.Session) (midspan.View, error)) {
	if !h.ensureStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	v, err := h.sessions.Do(id, func(s *midspan.Session) (midspan.View, error) {
		return fn(ctx, s)
	})
	if err != nil {
		h.writeDomainError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "get session", func(_ context.Context, s *midspan.Session) (midspan.View, error) {
		return s.View(), nil
	})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	mode, err := midspan.ParseMode(req.Mode)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	h.withSession(w, r, "set mode", func(_ context.Context, s *midspan.Session) (midspan.View, error) {
		return s.SetMode(mode), nil
	})
}

func (h *Handler) handleSetLeftover(w http.ResponseWriter, r *http.Request) {
	var req leftoverUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	h.withSession(w, r, "show leftovers", func(_ context.Context, s *midspan.Session) (midspan.View, error) {
		return s.SetShowLeftover(req.Show)
	})
}

func (h *Handler) handleSetExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	h.withSession(w, r, "exchange sides", func(_ context.Context, s *midspan.Session) (midspan.View, error) {
		return s.SetExchange(req.Exchange), nil
	})
}

func (h *Handler) handleCompleteEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeComplete
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	h.withSession(w, r, "complete edge", func(ctx context.Context, s *midspan.Session) (midspan.View, error) {
		return s.CompleteEdge(ctx, req.Source, req.Target)
	})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req edgeRelease
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	h.withSession(w, r, "release splice", func(ctx context.Context, s *midspan.Session) (midspan.View, error) {
		return s.Release(ctx, req.Port, req.Fiber)
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "refresh session", func(ctx context.Context, s *midspan.Session) (midspan.View, error) {
		return s.Refresh(ctx)
	})
}

func (h *Handler) decodeNode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req nodeRef
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return "", false
	}
	if req.Key == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "key is required", nil)
		return "", false
	}
	return req.Key, true
}

func (h *Handler) handleExpand(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeNode(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, "expand node", func(ctx context.Context, s *midspan.Session) (midspan.View, error) {
		return s.Expand(ctx, key)
	})
}

func (h *Handler) handleCollapse(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeNode(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, "collapse node", func(_ context.Context, s *midspan.Session) (midspan.View, error) {
		return s.Collapse(key)
	})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeNode(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, "toggle node", func(ctx context.Context, s *midspan.Session) (midspan.View, error) {
		return s.Toggle(ctx, key)
	})
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kuwaiba/osp-core/internal/connectivity"
)

type portSyncRequest struct {
	Address string `json:"address"`
}

func (h *Handler) handlePortSync(w http.ResponseWriter, r *http.Request) {
	var req portSyncRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if h.ports == nil {
		h.writeError(w, http.StatusServiceUnavailable, "port_sync_disabled", "snmp port sync is not enabled", nil)
		return
	}

	device := connectivity.Ref{Class: chi.URLParam(r, "class"), ID: chi.URLParam(r, "id")}
	res, err := h.ports.Sync(r.Context(), device, req.Address)
	if err != nil {
		h.writeDomainError(w, "sync ports", err)
		return
	}
	if res.Created == nil {
		res.Created = []connectivity.Ref{}
	}
	h.writeJSON(w, http.StatusOK, res)
}

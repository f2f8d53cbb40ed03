package httpapi

import (
	"net/http"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/containerpath"
)

type pathValidate struct {
	Containers []connectivity.Ref `json:"containers"`
}

type pathValidation struct {
	containerpath.Result
	Candidates []containerpath.Candidate `json:"candidates"`
}

type sharedQuery struct {
	A connectivity.Ref `json:"a"`
	B connectivity.Ref `json:"b"`
}

type pathCreate struct {
	A        connectivity.Ref   `json:"a"`
	B        connectivity.Ref   `json:"b"`
	Class    string             `json:"class"`
	Name     string             `json:"name"`
	Template string             `json:"template,omitempty"`
	Roots    []connectivity.Ref `json:"roots"`
	// Selected lists nested containers to check, in order. Checking one
	// unchecks the others that run through the same root.
	Selected []string `json:"selected,omitempty"`
}

func (h *Handler) handleValidatePath(w http.ResponseWriter, r *http.Request) {
	var req pathValidate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if !h.ensureStore(w) {
		return
	}

	sel, err := containerpath.LoadSelection(r.Context(), h.model, h.meta, req.Containers)
	if err != nil {
		h.writeDomainError(w, "load containers", err)
		return
	}
	res := sel.Validate()
	h.metrics.IncPathValidation(res.Valid)
	h.writeJSON(w, http.StatusOK, pathValidation{Result: res, Candidates: sel.Candidates()})
}

func (h *Handler) handleSharedContainers(w http.ResponseWriter, r *http.Request) {
	var req sharedQuery
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if missingRef(req.A) || missingRef(req.B) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "a and b are required", nil)
		return
	}
	if !h.ensureStore(w) {
		return
	}

	shared, err := containerpath.SharedContainers(r.Context(), h.model, req.A, req.B)
	if err != nil {
		h.writeDomainError(w, "list shared containers", err)
		return
	}
	if shared == nil {
		shared = []connectivity.Ref{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"containers": shared})
}

func (h *Handler) handleCreatePath(w http.ResponseWriter, r *http.Request) {
	var req pathCreate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if missingRef(req.A) || missingRef(req.B) || req.Class == "" || req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "a, b, class and name are required", nil)
		return
	}
	if !h.ensureStore(w) {
		return
	}

	ctx := r.Context()
	sel, err := containerpath.LoadSelection(ctx, h.model, h.meta, req.Roots)
	if err != nil {
		h.writeDomainError(w, "load containers", err)
		return
	}
	for _, key := range req.Selected {
		if err := sel.Toggle(key, true); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"key": key})
			return
		}
	}

	ref, err := h.paths.Create(ctx, containerpath.PathRequest{
		A:        req.A,
		B:        req.B,
		Class:    req.Class,
		Name:     req.Name,
		Template: req.Template,
	}, sel)
	if err != nil {
		h.writeDomainError(w, "create container", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ref)
}

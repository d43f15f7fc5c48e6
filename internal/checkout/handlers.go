package checkout

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Handler exposes the draft order endpoints.
type Handler struct {
	Svc *Service
}

type submitRequest struct {
	Customer *Customer `json:"customer"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil || h.Svc.Redis == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return false
	}
	return true
}

// Put handles PUT /api/v1/draft-orders/{sessionId}.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var draft Draft
	if err := common.DecodeJSON(r, &draft); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Save(r.Context(), chi.URLParam(r, "sessionId"), draft)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Get handles GET /api/v1/draft-orders/{sessionId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Delete handles DELETE /api/v1/draft-orders/{sessionId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles POST /api/v1/draft-orders/{sessionId}/submit. The body is
// optional; without one the customer details saved on the draft are used.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req submitRequest
	if err := common.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		common.WriteError(w, err)
		return
	}
	sub, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "sessionId"), req.Customer)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sub})
}

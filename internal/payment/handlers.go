package payment

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Handler exposes admin payment request endpoints.
type Handler struct {
	Svc *Service
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return false
	}
	return true
}

// Create handles POST /api/v1/admin/payment-requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	created, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		var perr *PartialError
		if errors.As(err, &perr) {
			zerolog.Ctx(r.Context()).Error().Err(perr.Err).
				Str("payment_request_id", perr.RequestID.String()).
				Str("step", string(perr.Step)).
				Msg("payment request partially created")
			common.WritePartialFailure(w, fmt.Sprintf("payment request created but %s step failed", perr.Step),
				perr.RequestID.String(), string(perr.Step), map[string]any{"requestId": perr.RequestID.String()})
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List handles GET /api/v1/admin/payment-requests?status=pending.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.ParsePage(r, 20)
	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	items, total, err := h.Svc.List(r.Context(), statuses, page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": page.Meta(total),
	})
}

// PatchStatus handles PATCH /api/v1/admin/payment-requests/{id}/status.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	pr, err := h.Svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pr})
}

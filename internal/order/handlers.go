package order

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler exposes order endpoints.
type Handler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil || h.Svc.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f store.OrderFilter) {
	page := common.ParsePage(r, 20)
	f.Limit, f.Offset = page.Size, page.Offset()
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		f.Statuses = strings.Split(raw, ",")
	}
	orders, total, err := h.Svc.List(r.Context(), f)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": page.Meta(total),
	})
}

// Mine handles GET /api/v1/orders for the signed-in customer.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	h.list(w, r, store.OrderFilter{UserID: &userID})
}

// AdminList handles GET /api/v1/admin/orders?status=pending,processing.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.list(w, r, store.OrderFilter{})
}

// PatchStatus handles PATCH /api/v1/admin/orders/{id}/status.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	order, err := h.Svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

// Track handles GET /api/v1/track-order?orderNumber=...&email=...
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	tracking, err := h.Svc.Track(r.Context(), q.Get("orderNumber"), q.Get("email"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tracking})
}

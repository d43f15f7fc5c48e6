package support

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler exposes support ticket endpoints.
type Handler struct {
	Svc *Service
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Create handles POST /api/v1/support/tickets.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "support service not configured", nil)
		return
	}
	var req CreateTicketRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	var userID *uuid.UUID
	if id, ok := common.UserUUID(r.Context()); ok {
		userID = &id
	}
	ticket, err := h.Svc.Create(r.Context(), req, userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ticket})
}

// List handles GET /api/v1/admin/tickets?status=open,in_progress.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "support service not configured", nil)
		return
	}
	page := common.ParsePage(r, 20)
	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	tickets, total, err := h.Svc.List(r.Context(), statuses, page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	now := h.Svc.now()
	type row struct {
		Ticket store.SupportTicket `json:"ticket"`
		SLA    SLAStatus           `json:"sla"`
	}
	rows := make([]row, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, row{Ticket: t, SLA: ForTicket(t, now)})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": page.Meta(total),
	})
}

// UpdateStatus handles PATCH /api/v1/admin/tickets/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "support service not configured", nil)
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
	ticket, err := h.Svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ticket})
}

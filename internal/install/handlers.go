package install

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler exposes admin installation endpoints.
type Handler struct {
	Svc *Service
}

type assignRequest struct {
	TechnicianID uuid.UUID `json:"technicianId" validate:"required"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "installation service not configured", nil)
		return false
	}
	return true
}

// List handles GET /api/v1/admin/installations?status=scheduled&unassigned=true.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.ParsePage(r, 20)
	f := store.InstallationFilter{
		Unassigned: r.URL.Query().Get("unassigned") == "true",
		Limit:      page.Size,
		Offset:     page.Offset(),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		f.Statuses = strings.Split(raw, ",")
	}
	items, total, err := h.Svc.List(r.Context(), f)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": page.Meta(total),
	})
}

// Technicians handles GET /api/v1/admin/technicians.
func (h *Handler) Technicians(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	techs, err := h.Svc.Technicians(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": techs})
}

// Slots handles GET /api/v1/admin/installation-slots?from=2025-03-10&to=2025-03-17.
// Both bounds default to a week starting today.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today, today.AddDate(0, 0, 7)
	q := r.URL.Query()
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			common.WriteError(w, common.NewValidationError(map[string]string{key: "must be a date (YYYY-MM-DD)"}, err))
			return
		}
		*dst = parsed
	}
	slots, err := h.Svc.Slots(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": slots})
}

// Assign handles POST /api/v1/admin/installations/{id}/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req assignRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	booking, err := h.Svc.Assign(r.Context(), id, req.TechnicianID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": booking})
}

package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Handler exposes the public plan catalog.
type Handler struct{}

// NewHandler constructs a Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Plans handles GET /api/v1/plans with an optional serviceType filter.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("serviceType"))
	if raw == "" {
		common.JSON(w, http.StatusOK, map[string]any{"data": Plans()})
		return
	}
	st, ok := ParseServiceType(raw)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown service type", map[string]string{"serviceType": raw})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": PlansFor(st)})
}

// PlansByService handles GET /api/v1/plans/{serviceType}.
func (h *Handler) PlansByService(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "serviceType")
	st, ok := ParseServiceType(raw)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown service type", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":   PlansFor(st),
		"addons": AddonsFor(st),
	})
}

// Addons handles GET /api/v1/addons.
func (h *Handler) Addons(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("serviceType"))
	if raw == "" {
		common.JSON(w, http.StatusOK, map[string]any{"data": Addons()})
		return
	}
	st, ok := ParseServiceType(raw)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown service type", map[string]string{"serviceType": raw})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": AddonsFor(st)})
}

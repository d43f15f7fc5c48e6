package analytics

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
)

type Handler struct {
	Svc *Service
}

// KPIs handles GET /api/v1/admin/kpis. ?refresh=1 drops the cached counters
// first. The Age header says how old the served counters are.
func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	log := zerolog.Ctx(r.Context())
	if r.URL.Query().Get("refresh") == "1" {
		if err := h.Svc.Invalidate(r.Context()); err != nil {
			log.Warn().Err(err).Msg("kpi cache invalidate")
		}
	}
	k, err := h.Svc.KPIs(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("compute kpis")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "failed to compute kpis", nil)
		return
	}
	age := max(int(h.Svc.now().Sub(k.ComputedAt).Seconds()), 0)
	w.Header().Set("Age", strconv.Itoa(age))
	common.JSON(w, http.StatusOK, map[string]any{"data": k})
}

package auth

import (
	"net/http"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler exposes the caller's own profile.
type Handler struct {
	Profiles store.Profiles
}

// Me handles GET /api/v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Profiles == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profiles not configured", nil)
		return
	}
	userID, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	profile, err := h.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		common.WriteError(w, common.FromStoreError("profile", err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": profile})
}

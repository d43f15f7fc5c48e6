package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler serves the admin audit trail.
type Handler struct {
	Store store.AuditLogs
}

// List pages through audit entries, newest first. Optional filters:
// action, entityType, entityId, actorId and since (RFC 3339).
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page := common.ParsePage(r, 20)
	filter.Limit, filter.Offset = page.Size, page.Offset()

	rows, err := h.Store.ListAuditLogs(r.Context(), filter)
	if err != nil {
		common.WriteError(w, common.FromStoreError("audit log", err))
		return
	}
	total, err := h.Store.CountAuditLogs(r.Context(), filter)
	if err != nil {
		common.WriteError(w, common.FromStoreError("audit log", err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": page.Meta(total),
	})
}

func parseFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	f := store.AuditFilter{
		Action:     strings.TrimSpace(q.Get("action")),
		EntityType: strings.TrimSpace(q.Get("entityType")),
		EntityID:   strings.TrimSpace(q.Get("entityId")),
	}
	fields := map[string]string{}
	if raw := strings.TrimSpace(q.Get("actorId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fields["actorId"] = "must be a valid UUID"
		} else {
			f.ActorID = &id
		}
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields["since"] = "must be an RFC 3339 timestamp"
		} else {
			f.Since = &since
		}
	}
	if len(fields) > 0 {
		return f, common.NewValidationError(fields, nil)
	}
	return f, nil
}

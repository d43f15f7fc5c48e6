package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

func TestHandlerList(t *testing.T) {
	mem := storetest.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, mem.InsertAuditLog(context.Background(), store.AuditLog{Action: "TEST", EntityType: "x"}))
	}
	h := Handler{Store: mem}
	req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs?page=2&limit=2", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var payload struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			TotalItems int `json:"total_items"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, 2, payload.Pagination.Page)
	require.Equal(t, 3, payload.Pagination.TotalItems)
	require.Equal(t, 2, payload.Pagination.TotalPages)
}

func TestHandlerListFilters(t *testing.T) {
	mem := storetest.New()
	ctx := context.Background()
	actor := uuid.New()
	id := "inv-1"
	require.NoError(t, mem.InsertAuditLog(ctx, store.AuditLog{Action: "invoice.create", EntityType: "invoice", EntityID: &id, ActorID: &actor}))
	require.NoError(t, mem.InsertAuditLog(ctx, store.AuditLog{Action: "invoice.create", EntityType: "invoice"}))
	require.NoError(t, mem.InsertAuditLog(ctx, store.AuditLog{Action: "ticket.status", EntityType: "support_ticket"}))

	h := Handler{Store: mem}
	cases := map[string]int{
		"/admin/audit-logs?action=invoice.create":             2,
		"/admin/audit-logs?entityType=invoice&entityId=inv-1": 1,
		"/admin/audit-logs?actorId=" + actor.String():         1,
		"/admin/audit-logs?since=2999-01-01T00:00:00Z":        0,
	}
	for target, want := range cases {
		rr := httptest.NewRecorder()
		h.List(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rr.Code, target)
		var payload struct {
			Data []store.AuditLog `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
		require.Len(t, payload.Data, want, target)
	}

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/admin/audit-logs?actorId=nope&since=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "actorId")
	require.Contains(t, rr.Body.String(), "since")
}

func serveAudited(t *testing.T, mem *storetest.Memory, cfg HTTPConfig, pattern, path string, h http.HandlerFunc) {
	t.Helper()
	rec := HTTPRecorder{Service: &Service{Store: mem, Enabled: true}, OnError: func(err error) { t.Errorf("audit: %v", err) }}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.With(rec.Middleware(cfg)).Post(pattern, h)
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req = req.WithContext(common.WithUserID(req.Context(), "0b7e7f5e-2f5c-4bb4-a3e6-1f0d34f6f0a1"))
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRecorderUsesRouteParam(t *testing.T) {
	mem := storetest.New()
	cfg := HTTPConfig{Action: "mandate.status", ResourceType: "dd_mandate", ResourceIDParam: "id"}

	serveAudited(t, mem, cfg, "/admin/mandates/{id}/status", "/admin/mandates/m-1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	serveAudited(t, mem, cfg, "/admin/mandates/{id}/status", "/admin/mandates/m-2/status", func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "mandate cancelled", nil)
	})

	entries := mem.AuditEntries()
	require.Len(t, entries, 1, "rejected writes are not audited")
	require.Equal(t, "mandate.status", entries[0].Action)
	require.Equal(t, "dd_mandate", entries[0].EntityType)
	require.Equal(t, "m-1", *entries[0].EntityID)
	require.NotNil(t, entries[0].ActorID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	require.Equal(t, "/admin/mandates/{id}/status", details["route"])
	require.NotEmpty(t, details["request_id"])
}

func TestRecorderTakesCreatedID(t *testing.T) {
	mem := storetest.New()
	cfg := HTTPConfig{Action: "invoice.create", ResourceType: "invoice", ResourceIDParam: "id"}

	serveAudited(t, mem, cfg, "/admin/invoices", "/admin/invoices", func(w http.ResponseWriter, _ *http.Request) {
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": "inv-9", "total": "42.00"}})
	})

	entries := mem.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "inv-9", *entries[0].EntityID)
}

func TestRecorderRecordsPartialFailure(t *testing.T) {
	mem := storetest.New()
	cfg := HTTPConfig{Action: "payment_request.create", ResourceType: "payment_request"}

	serveAudited(t, mem, cfg, "/admin/payment-requests", "/admin/payment-requests", func(w http.ResponseWriter, _ *http.Request) {
		common.WritePartialFailure(w, "payment request created but email step failed", "pr-7", "email", nil)
	})
	serveAudited(t, mem, cfg, "/admin/payment-requests", "/admin/payment-requests", func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "email function down", nil)
	})

	entries := mem.AuditEntries()
	require.Len(t, entries, 1, "plain server errors are not audited")
	require.Equal(t, "pr-7", *entries[0].EntityID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	require.Equal(t, true, details["partial_failure"])
	require.Equal(t, "email", details["failed_step"])
	require.EqualValues(t, http.StatusBadGateway, details["status"])
}

func TestRecorderTakesNestedRequestID(t *testing.T) {
	mem := storetest.New()
	cfg := HTTPConfig{Action: "payment_request.create", ResourceType: "payment_request"}

	serveAudited(t, mem, cfg, "/admin/payment-requests", "/admin/payment-requests", func(w http.ResponseWriter, _ *http.Request) {
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"request": map[string]any{"id": "pr-8"}, "link": "x"}})
	})

	entries := mem.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "pr-8", *entries[0].EntityID)
}

func TestRecorderDisabled(t *testing.T) {
	mem := storetest.New()
	rec := HTTPRecorder{Service: &Service{Store: mem}}
	called := false
	h := rec.Middleware(HTTPConfig{Action: "x"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.True(t, called)
	require.Empty(t, mem.AuditEntries())
}

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/auth"
	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/config"
	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

const secret = "router-test-secret-router-test-00"

type fixture struct {
	handler http.Handler
	mem     *storetest.Memory
	admin   string
	member  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	verifier, err := auth.NewService(auth.Config{Secret: secret, Audience: "authenticated", ClockSkew: time.Minute})
	require.NoError(t, err)

	mem := storetest.New()
	adminID, memberID := uuid.New(), uuid.New()
	mem.Profiles = []store.Profile{
		{ID: adminID, Email: "ops@example.com", Role: auth.RoleAdmin},
		{ID: memberID, Email: "jo@example.com", Role: "customer"},
	}

	cfg := &config.Config{
		AppEnv:                "test",
		AuditEnabled:          true,
		AuditSamplingRate:     1,
		DraftOrderTTL:         2 * time.Hour,
		KPICacheTTL:           time.Minute,
		IdempotencyTTL:        time.Hour,
		WidgetTimeout:         time.Second,
		RateLimitPublicPerMin: 2,
		QueueRedisPrefix:      "test:queue",
	}
	srv := &server{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		store:    mem,
		redis:    rdb,
		email:    &common.InMemoryEmail{},
		verifier: verifier,
	}
	h := srv.routes()
	t.Cleanup(srv.policy.Wait)
	return fixture{handler: h, mem: mem, admin: token(t, adminID), member: token(t, memberID)}
}

func token(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject.String()).
		Audience([]string{"authenticated"}).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func (f fixture) do(t *testing.T, method, target, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doKeyed(t, method, target, bearer, body, "")
}

func (f fixture) doKeyed(t *testing.T, method, target, bearer, body, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", "", "").Code)

	rec := f.do(t, http.MethodGet, "/api/v1/plans", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/addons", "", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/track-order?orderNumber=ORD-1&email=a@example.com", "", "").Code)
}

func TestAdminRequiresRole(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/admin/kpis", "", "").Code)
	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/admin/kpis", f.member, "").Code)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/kpis", f.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"customers":2`)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/me", f.member, "").Code)
}

func TestAdminWriteIsAudited(t *testing.T) {
	f := newFixture(t)
	orderID := uuid.New()
	f.mem.Orders = []store.Order{{ID: orderID, OrderNumber: "ORD-1", Status: store.OrderPending}}

	rec := f.do(t, http.MethodPatch, "/api/v1/admin/orders/"+orderID.String()+"/status", f.admin, `{"status":"processing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.OrderProcessing, f.mem.Orders[0].Status)
	require.Len(t, f.mem.AuditLogs, 1)
	require.Equal(t, orderID.String(), *f.mem.AuditLogs[0].EntityID)
}

func TestPartialInvoiceIsReplayedAndAudited(t *testing.T) {
	f := newFixture(t)
	f.mem.Fail["InsertInvoiceLine"] = storetest.ErrInjected
	body := `{"userId":"` + f.mem.Profiles[1].ID.String() + `","lines":[{"description":"Fibre","quantity":1,"unitPrice":"29.99"}]}`

	first := f.doKeyed(t, http.MethodPost, "/api/v1/admin/invoices", f.admin, body, "inv-retry-1")
	require.Equal(t, http.StatusBadGateway, first.Code)
	require.Contains(t, first.Body.String(), "PARTIAL_FAILURE")

	again := f.doKeyed(t, http.MethodPost, "/api/v1/admin/invoices", f.admin, body, "inv-retry-1")
	require.Equal(t, http.StatusBadGateway, again.Code)
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), again.Body.String())

	require.Len(t, f.mem.Invoices, 1, "a retry with the same key must not create a second invoice")
	require.Len(t, f.mem.AuditLogs, 1)
	require.Equal(t, "invoice.create", f.mem.AuditLogs[0].Action)
	require.Equal(t, f.mem.Invoices[0].ID.String(), *f.mem.AuditLogs[0].EntityID)
	require.Contains(t, string(f.mem.AuditLogs[0].Details), `"failed_step":"lines"`)
}

func TestDashboardIsolatesWidgetFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.Fail["ListTickets"] = storetest.ErrInjected

	rec := f.do(t, http.MethodGet, "/api/v1/admin/queues", f.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

func TestPublicTicketRateLimited(t *testing.T) {
	f := newFixture(t)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodPost, "/api/v1/support/tickets", "", `{}`).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, codes[2])
	require.NotEqual(t, http.StatusTooManyRequests, codes[0])
}

package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/pricing"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

const session = "sess-0123456789"

type fixture struct {
	svc  *Service
	mr   *miniredis.Miniredis
	mem  *storetest.Memory
	mail *common.InMemoryEmail
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mem := storetest.New()
	mail := &common.InMemoryEmail{}
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	return fixture{
		svc:  &Service{Redis: rdb, Orders: mem, Email: mail, Now: func() time.Time { return now }},
		mr:   mr,
		mem:  mem,
		mail: mail,
	}
}

func bundleDraft() Draft {
	return Draft{Selection: pricing.Selection{
		PlanIDs:  []string{"bb-fibre-36", "sim-10gb"},
		AddonIDs: []string{"addon-static-ip"},
	}}
}

func customer() *Customer {
	return &Customer{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Address:  &Address{Line1: "1 Cobol Way", City: "Leeds", Postcode: "LS1 1AA"},
	}
}

func TestValidSessionID(t *testing.T) {
	require.True(t, ValidSessionID(session))
	require.True(t, ValidSessionID("AbC_dEf-9"))
	require.False(t, ValidSessionID("short"))
	require.False(t, ValidSessionID("has:colon:inside"))
	require.False(t, ValidSessionID(strings.Repeat("a", 129)))
}

func TestSaveGetDeleteWithTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Save(ctx, session, bundleDraft())
	require.NoError(t, err)
	require.Equal(t, "27.88", view.Quote.Bundle.DiscountedTotal.StringFixed(2))
	require.Equal(t, "32.88", view.Quote.MonthlyTotal.StringFixed(2))
	require.Equal(t, DefaultDraftTTL, f.mr.TTL("telco:draft:"+session))

	got, err := f.svc.Get(ctx, session)
	require.NoError(t, err)
	require.Equal(t, []string{"bb-fibre-36", "sim-10gb"}, got.Draft.Selection.PlanIDs)

	require.NoError(t, f.svc.Delete(ctx, session))
	_, err = f.svc.Get(ctx, session)
	require.ErrorIs(t, err, ErrDraftNotFound)
}

func TestDraftExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Save(ctx, session, bundleDraft())
	require.NoError(t, err)

	f.mr.FastForward(DefaultDraftTTL + time.Second)
	_, err = f.svc.Get(ctx, session)
	require.ErrorIs(t, err, ErrDraftNotFound)
}

func TestSaveRejectsUnknownPlan(t *testing.T) {
	f := newFixture(t)
	draft := Draft{Selection: pricing.Selection{PlanIDs: []string{"bb-nope"}}}
	_, err := f.svc.Save(context.Background(), session, draft)
	require.ErrorIs(t, err, pricing.ErrUnknownPlan)
	require.False(t, f.mr.Exists("telco:draft:"+session))
}

func TestSubmitCreatesGuestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Save(ctx, session, bundleDraft())
	require.NoError(t, err)

	sub, err := f.svc.Submit(ctx, session, customer())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sub.Order.OrderNumber, "ORD-20250310-"))
	require.Equal(t, "32.88", sub.Order.MonthlyTotal.StringFixed(2))
	require.Len(t, f.mem.GuestOrders, 1)
	require.JSONEq(t, `{"line1":"1 Cobol Way","city":"Leeds","postcode":"LS1 1AA"}`, string(f.mem.GuestOrders[0].Address))

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, common.EmailOrderConfirmation, sent[0].Type)
	require.Equal(t, "32.88", sent[0].Data["monthlyTotal"])
	require.Equal(t, "3.10", sent[0].Data["savings"])

	require.False(t, f.mr.Exists("telco:draft:"+session))
}

func TestSubmitRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Save(ctx, session, bundleDraft())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, session, nil)
	require.ErrorIs(t, err, ErrCustomerRequired)
	require.Empty(t, f.mem.GuestOrders)
	require.True(t, f.mr.Exists("telco:draft:"+session))
}

func TestSubmitKeepsDraftWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := bundleDraft()
	draft.Customer = customer()
	_, err := f.svc.Save(ctx, session, draft)
	require.NoError(t, err)
	f.mem.Fail["InsertGuestOrder"] = errors.New("db down")

	_, err = f.svc.Submit(ctx, session, nil)
	require.Error(t, err)
	require.Empty(t, f.mail.Sent())
	require.True(t, f.mr.Exists("telco:draft:"+session))
}

func TestSubmitSurvivesEmailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.Err = errors.New("function down")
	draft := bundleDraft()
	draft.Customer = customer()
	_, err := f.svc.Save(ctx, session, draft)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, session, nil)
	require.NoError(t, err)
	require.Len(t, f.mem.GuestOrders, 1)
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Route("/draft-orders/{sessionId}", func(r chi.Router) {
		r.Put("/", h.Put)
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/submit", h.Submit)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/draft-orders/"+session, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodPut, "/draft-orders/bad", `{"selection":{"planIds":["sim-10gb"]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPut, "/draft-orders/"+session, `{"selection":{"planIds":[]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = do(http.MethodPut, "/draft-orders/"+session,
		`{"selection":{"planIds":["sim-10gb"]},"customer":{"fullName":"Grace","email":"grace@example.com"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/draft-orders/"+session, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sessionId":"`+session+`"`)

	rec = do(http.MethodPost, "/draft-orders/"+session+"/submit", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.mem.GuestOrders, 1)

	rec = do(http.MethodDelete, "/draft-orders/"+session, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

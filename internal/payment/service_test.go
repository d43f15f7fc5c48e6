package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *storetest.Memory, *common.InMemoryEmail, store.Profile) {
	t.Helper()
	mem := storetest.New()
	name := "Jo Bloggs"
	p := store.Profile{ID: uuid.New(), Email: "jo@example.com", FullName: &name}
	mem.Profiles = []store.Profile{p}
	mail := &common.InMemoryEmail{}
	svc := &Service{
		Store:    mem,
		Profiles: mem,
		Email:    mail,
		LinkBase: "https://pay.example/pay",
		Now:      func() time.Time { return fixedNow },
		Token:    func(int) (string, error) { return "tok_abc", nil },
	}
	return svc, mem, mail, p
}

func TestCreateStoresHashAndEmailsLink(t *testing.T) {
	svc, mem, mail, p := newService(t)

	created, err := svc.Create(context.Background(), CreateRequest{
		UserID:      p.ID,
		Amount:      decimal.RequireFromString("45.5"),
		Description: "March arrears",
	})
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/pay?token=tok_abc", created.Link)
	require.Equal(t, store.RequestPending, created.Request.Status)
	require.Equal(t, fixedNow.Add(DefaultRequestTTL), created.Request.ExpiresAt)

	require.Len(t, mem.PaymentRequests, 1)
	stored := mem.PaymentRequests[0]
	require.NotNil(t, stored.TokenHash)
	require.Equal(t, common.Sha256Hex("tok_abc"), *stored.TokenHash)

	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, common.EmailPaymentRequest, sent[0].Type)
	require.Equal(t, "jo@example.com", sent[0].Data["to"])
	require.Equal(t, "Jo Bloggs", sent[0].Data["name"])
	require.Equal(t, "45.50", sent[0].Data["amount"])
	require.Equal(t, created.Link, sent[0].Data["link"])
}

func TestCreateRealTokenLength(t *testing.T) {
	svc, _, _, p := newService(t)
	svc.Token = nil
	created, err := svc.Create(context.Background(), CreateRequest{UserID: p.ID, Amount: decimal.NewFromInt(10), Description: "x"})
	require.NoError(t, err)
	token := strings.TrimPrefix(created.Link, "https://pay.example/pay?token=")
	// 32 bytes of raw URL base64
	require.Len(t, token, 43)
}

func TestCreateValidation(t *testing.T) {
	svc, mem, _, p := newService(t)
	cases := []CreateRequest{
		{UserID: p.ID, Amount: decimal.Zero, Description: "x"},
		{UserID: p.ID, Amount: decimal.NewFromInt(-5), Description: "x"},
		{UserID: p.ID, Amount: decimal.NewFromInt(5)},
		{Amount: decimal.NewFromInt(5), Description: "x"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req)
		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr)
		require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	}
	require.Empty(t, mem.PaymentRequests)
}

func TestCreateUnknownCustomer(t *testing.T) {
	svc, mem, _, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateRequest{UserID: uuid.New(), Amount: decimal.NewFromInt(5), Description: "x"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	require.Empty(t, mem.PaymentRequests)
}

func TestCreatePartialFailuresKeepRequest(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		svc, mem, mail, p := newService(t)
		mem.Fail["SetPaymentRequestToken"] = storetest.ErrInjected
		created, err := svc.Create(context.Background(), CreateRequest{UserID: p.ID, Amount: decimal.NewFromInt(5), Description: "x"})
		var perr *PartialError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, StepToken, perr.Step)
		require.Equal(t, created.Request.ID, perr.RequestID)
		require.Len(t, mem.PaymentRequests, 1)
		require.Empty(t, mail.Sent())
	})
	t.Run("email", func(t *testing.T) {
		svc, mem, mail, p := newService(t)
		mail.Err = errors.New("function down")
		_, err := svc.Create(context.Background(), CreateRequest{UserID: p.ID, Amount: decimal.NewFromInt(5), Description: "x"})
		var perr *PartialError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, StepEmail, perr.Step)
		require.Len(t, mem.PaymentRequests, 1)
		require.NotNil(t, mem.PaymentRequests[0].TokenHash)
	})
}

func TestUpdateStatus(t *testing.T) {
	svc, mem, _, p := newService(t)
	created, err := svc.Create(context.Background(), CreateRequest{UserID: p.ID, Amount: decimal.NewFromInt(5), Description: "x"})
	require.NoError(t, err)

	pr, err := svc.UpdateStatus(context.Background(), created.Request.ID, store.RequestPaid)
	require.NoError(t, err)
	require.Equal(t, store.RequestPaid, pr.Status)

	_, err = svc.UpdateStatus(context.Background(), created.Request.ID, "refunded")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Equal(t, 1, mem.CallCount("UpdatePaymentRequestStatus"))
}

func TestHandlers(t *testing.T) {
	svc, _, mail, p := newService(t)
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/admin/payment-requests", h.Create)
	r.Get("/admin/payment-requests", h.List)
	r.Patch("/admin/payment-requests/{id}/status", h.PatchStatus)

	body := `{"userId":"` + p.ID.String() + `","amount":"19.99","description":"Late fee"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/payment-requests", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"link":"https://pay.example/pay?token=tok_abc"`)
	require.NotContains(t, rec.Body.String(), "tokenHash")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/payment-requests?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_items":1`)

	mail.Err = errors.New("down")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/payment-requests", strings.NewReader(body)))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "PARTIAL_FAILURE")
	require.Contains(t, rec.Body.String(), `"step":"email"`)
	require.True(t, common.IsPartialWrite(rec.Header()))
}

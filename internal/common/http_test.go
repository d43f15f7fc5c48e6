package common_test

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:61000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	require.Equal(t, "198.51.100.7", common.ClientIP(req), "proxy headers are RealIP's job")

	req.RemoteAddr = "198.51.100.8"
	require.Equal(t, "198.51.100.8", common.ClientIP(req))
	require.Empty(t, common.ClientIP(nil))
}

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	r := chi.NewRouter()
	var got uuid.UUID
	var gotErr error
	r.Get("/orders/{id}", func(_ http.ResponseWriter, req *http.Request) {
		got, gotErr = common.UUIDParam(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil))
	require.NoError(t, gotErr)
	require.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/ORD-1", nil))
	var appErr *common.AppError
	require.ErrorAs(t, gotErr, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestParsePage(t *testing.T) {
	page := common.ParsePage(httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil), 20)
	require.Equal(t, common.Page{Number: 3, Size: common.MaxPageSize}, page)
	require.Equal(t, 200, page.Offset())

	page = common.ParsePage(httptest.NewRequest(http.MethodGet, "/?page=-1&limit=x", nil), 20)
	require.Equal(t, common.Page{Number: 1, Size: 20}, page)
	require.Zero(t, page.Offset())

	page = common.Page{Number: 2, Size: 20}
	require.Equal(t, common.Pagination{Page: 2, PerPage: 20, TotalItems: 41, TotalPages: 3}, page.Meta(41))
	require.Equal(t, common.Pagination{Page: 1, PerPage: 20}, common.Page{Number: 1, Size: 20}.Meta(0))
}

func TestJSONUnencodableValue(t *testing.T) {
	rr := httptest.NewRecorder()
	common.JSON(rr, http.StatusOK, map[string]any{"bad": math.Inf(1)})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":{"code":"INTERNAL","message":"internal error"}}`, rr.Body.String())
}

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewValidationError(map[string]string{"email": "is required"}, nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":{"code":"VALIDATION_ERROR","message":"validation failed","details":{"email":"is required"}}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("dial tcp: secret host"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret host")
}

func TestFromStoreError(t *testing.T) {
	var appErr *common.AppError

	require.ErrorAs(t, common.FromStoreError("invoice", pgx.ErrNoRows), &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	require.ErrorAs(t, common.FromStoreError("technician", &pgconn.PgError{Code: "23505"}), &appErr)
	require.Equal(t, "CONFLICT", appErr.Code)

	require.ErrorAs(t, common.FromStoreError("slot", &pgconn.PgError{Code: "23514"}), &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	plain := errors.New("boom")
	require.Same(t, plain, common.FromStoreError("order", plain))
	require.NoError(t, common.FromStoreError("order", nil))
}

type ticketInput struct {
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=10"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","subject":"a very long subject"}`))
	var in ticketInput
	require.NoError(t, common.DecodeJSON(req, &in))

	err := common.Validate(in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, map[string]string{
		"email":   "must be a valid email address",
		"subject": "must be at most 10",
	}, appErr.Details)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","extra":1}`))
	require.ErrorAs(t, common.DecodeJSON(req, &in), &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

}

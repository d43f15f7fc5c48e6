package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
)

type ticket struct {
	Subject string `json:"subject"`
}

func decodeHandler(t *testing.T, got *ticket) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := common.DecodeJSON(r, got); err != nil {
			common.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func post(handler http.Handler, body, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/support/tickets", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestBodyLimitPassesSmallJSON(t *testing.T) {
	var got ticket
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(decodeHandler(t, &got))

	rr := post(handler, `{"subject":"no dial tone"}`, "application/json; charset=utf-8")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "no dial tone", got.Subject)
}

func TestBodyLimitRejectsDeclaredOversize(t *testing.T) {
	called := false
	handler := BodyLimit{Max: 8}.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := post(handler, `{"subject":"broadband down"}`, "application/json")
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), `"PAYLOAD_TOO_LARGE"`)
	require.False(t, called)
}

func TestBodyLimitCapsUndeclaredBody(t *testing.T) {
	var got ticket
	handler := BodyLimit{Max: 8}.Middleware(decodeHandler(t, &got))

	// chunked uploads arrive without a Content-Length
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(`{"subject":"broadband down"}`)))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), `"PAYLOAD_TOO_LARGE"`)
}

func TestBodyLimitRequiresJSON(t *testing.T) {
	handler := BodyLimit{Max: 64, RequireJSON: true}.Middleware(http.HandlerFunc(okHandler))

	rr := post(handler, "subject=help", "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "reads carry no body")
}

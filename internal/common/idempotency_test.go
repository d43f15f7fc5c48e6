package common_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Hour}, mr
}

func post(h http.Handler, path, key, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if user != "" {
		req = req.WithContext(common.WithUserID(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdemReplaysFirstResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		common.JSON(w, http.StatusCreated, map[string]any{"invoice": n})
	}))

	first := post(h, "/api/v1/admin/invoices", "inv-42", "u1")
	require.Equal(t, http.StatusCreated, first.Code)

	again := post(h, "/api/v1/admin/invoices", "inv-42", "u1")
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), again.Body.String())
	require.EqualValues(t, 1, calls.Load())

	// a different caller or route gets its own key
	post(h, "/api/v1/admin/invoices", "inv-42", "u2")
	post(h, "/api/v1/admin/payment-requests", "inv-42", "u1")
	require.EqualValues(t, 3, calls.Load())

	post(h, "/api/v1/admin/invoices", "", "u1")
	require.EqualValues(t, 4, calls.Load())
}

func TestIdemRejectsConcurrentDuplicate(t *testing.T) {
	idem, _ := newIdem(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusAccepted)
	}))

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- post(h, "/api/v1/admin/campaigns/c1/send", "send-1", "u1") }()
	<-entered

	dup := post(h, "/api/v1/admin/campaigns/c1/send", "send-1", "u1")
	require.Equal(t, http.StatusConflict, dup.Code)
	require.Contains(t, dup.Body.String(), "IDEMPOTENCY_IN_PROGRESS")

	close(release)
	require.Equal(t, http.StatusAccepted, (<-done).Code)
}

func TestIdemReleasesKeyAfterServerError(t *testing.T) {
	idem, mr := newIdem(t)
	var fail atomic.Bool
	fail.Store(true)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "email function down", nil)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	require.Equal(t, http.StatusBadGateway, post(h, "/submit", "k1", "").Code)
	require.Empty(t, mr.Keys())

	fail.Store(false)
	require.Equal(t, http.StatusCreated, post(h, "/submit", "k1", "").Code)
	require.Len(t, mr.Keys(), 1)
}

func TestIdemKeepsPartialFailure(t *testing.T) {
	idem, mr := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		common.WritePartialFailure(w, "invoice created but its lines were not all saved", "inv-1", "lines", nil)
	}))

	first := post(h, "/api/v1/admin/invoices", "k3", "u1")
	require.Equal(t, http.StatusBadGateway, first.Code)
	require.True(t, common.IsPartialWrite(first.Header()))
	require.Len(t, mr.Keys(), 1)

	again := post(h, "/api/v1/admin/invoices", "k3", "u1")
	require.Equal(t, http.StatusBadGateway, again.Code)
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.True(t, common.IsPartialWrite(again.Header()))
	require.JSONEq(t, first.Body.String(), again.Body.String())
	require.EqualValues(t, 1, calls.Load())
}

func TestIdemReleasesKeyOnPanic(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	require.Panics(t, func() { post(h, "/submit", "k2", "") })
	require.Empty(t, mr.Keys())
}

func TestIdemRejectsOversizedKey(t *testing.T) {
	idem, _ := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := post(h, "/submit", strings.Repeat("k", 256), "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

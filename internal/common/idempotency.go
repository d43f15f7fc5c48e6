package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
)

const (
	idemPending   = "pending"
	maxIdemKeyLen = 255
)

// Idem makes writes that carry an Idempotency-Key header safe to retry. The
// first completed response is kept for TTL and replayed, with an
// Idempotent-Replayed header, to any repeat of the same key on the same route
// by the same caller. A repeat that arrives while the first request is still
// running gets 409 IDEMPOTENCY_IN_PROGRESS. Server errors and panics release
// the key so the client can try again, except PARTIAL_FAILURE responses:
// those committed rows and are replayed like any completed request.
type Idem struct {
	R      redis.Cmdable
	TTL    time.Duration
	Prefix string
}

type savedResponse struct {
	Status  int    `json:"status"`
	Body    []byte `json:"body"`
	Partial bool   `json:"partial,omitempty"`
}

func (i Idem) key(r *http.Request, header string) string {
	user, _ := UserID(r.Context())
	sum := sha256.Sum256([]byte(r.Method + "\n" + r.URL.Path + "\n" + user + "\n" + header))
	prefix := i.Prefix
	if prefix == "" {
		prefix = "telco:idem:"
	}
	return prefix + hex.EncodeToString(sum[:])
}

// Middleware is the chi middleware. Requests without the header pass through.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(header) > maxIdemKeyLen {
			JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key is too long", nil)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := i.key(r, header)

		claimed, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store unavailable", nil)
			return
		}
		if !claimed {
			i.replay(ctx, w, key)
			return
		}

		var body bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)
		finished := false
		defer func() {
			bg := context.WithoutCancel(ctx)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			partial := IsPartialWrite(ww.Header())
			if !finished || (status >= http.StatusInternalServerError && !partial) {
				_ = i.R.Del(bg, key).Err()
				return
			}
			raw, err := json.Marshal(savedResponse{Status: status, Body: body.Bytes(), Partial: partial})
			if err != nil {
				_ = i.R.Del(bg, key).Err()
				return
			}
			_ = i.R.Set(bg, key, raw, ttl).Err()
		}()
		next.ServeHTTP(ww, r)
		finished = true
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store unavailable", nil)
		return
	}
	var saved savedResponse
	if err != nil || string(raw) == idemPending || json.Unmarshal(raw, &saved) != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this Idempotency-Key is still being processed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	if saved.Partial {
		w.Header().Set(HeaderPartialWrite, "true")
	}
	w.WriteHeader(saved.Status)
	_, _ = w.Write(saved.Body)
}

// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/resilience"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness. The server clears it when draining so load
// balancers stop routing before in-flight requests finish.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	// Breakers are reported but never fail readiness: an open email breaker
	// degrades notifications only.
	Breakers map[string]*resilience.Breaker
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready answers 200 when Postgres and Redis both answer a ping, 503 while
// draining or when either is down. The two pings run concurrently so the probe
// costs the slower of the two timeouts, not their sum. Failure detail goes to
// the log; the body only says "unavailable".
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	var dbErr, redisErr error
	var wg conc.WaitGroup
	wg.Go(func() { dbErr = h.Checker.PingDB(ctx, h.dbTimeout()) })
	wg.Go(func() { redisErr = h.Checker.PingRedis(ctx, h.redisTimeout()) })
	wg.Wait()

	log := zerolog.Ctx(ctx)
	probe := func(name string, err error) string {
		if err == nil {
			return "ok"
		}
		log.Warn().Err(err).Str("dependency", name).Msg("readiness probe failed")
		return "unavailable"
	}
	body := map[string]any{
		"status": "ok",
		"db":     probe("postgres", dbErr),
		"redis":  probe("redis", redisErr),
	}
	if len(h.Breakers) > 0 {
		states := make(map[string]string, len(h.Breakers))
		for name, b := range h.Breakers {
			if b != nil {
				states[name] = b.State().String()
			}
		}
		body["breakers"] = states
	}
	status := http.StatusOK
	if dbErr != nil || redisErr != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	common.JSON(w, status, body)
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}

// Package lock serializes work across API replicas with a Redis lease.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost cancels the callback's context when the lease could not be
// renewed, typically because Redis evicted or expired the key.
var ErrLockLost = errors.New("lock: lease lost")

var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// Locker hands out leases keyed by name. Campaign sends hold one per campaign
// so two admins pressing send do not interleave the fan-out.
type Locker struct {
	R redis.Cmdable
	// RetryBackoff is the wait between acquisition attempts. Defaults to 50ms.
	RetryBackoff time.Duration
}

// WithLock waits for the lease on key, runs fn and releases the lease. While
// fn runs the lease is renewed every ttl/3; if a renewal finds the key gone or
// owned by someone else, fn's context is cancelled with ErrLockLost.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()

	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go l.renew(leaseCtx, cancel, key, token, ttl)

	if err := fn(leaseCtx); err != nil {
		if cause := context.Cause(leaseCtx); errors.Is(cause, ErrLockLost) {
			return fmt.Errorf("%w: %w", cause, err)
		}
		return err
	}
	return nil
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (l Locker) renew(ctx context.Context, cancel context.CancelCauseFunc, key, token string, ttl time.Duration) {
	tick := time.NewTicker(max(ttl/3, time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int64()
		if ctx.Err() != nil {
			return
		}
		if err != nil || n == 0 {
			cancel(ErrLockLost)
			return
		}
	}
}

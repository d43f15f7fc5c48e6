package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// SendGuard claims a key before an email is sent so a redelivered task does
// not email the same recipient twice within the TTL.
type SendGuard struct {
	Client redis.Cmdable
	Prefix string
	TTL    time.Duration
}

func (g SendGuard) key(id string) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "telco"
	}
	return prefix + ":sent:" + id
}

// Acquire claims id. It reports false when id was already claimed.
func (g SendGuard) Acquire(ctx context.Context, id string) (bool, error) {
	if g.Client == nil {
		return true, nil
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return g.Client.SetNX(ctx, g.key(id), "1", ttl).Result()
}

// Release drops the claim on id so a failed send can be retried.
func (g SendGuard) Release(ctx context.Context, id string) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, g.key(id)).Err()
}

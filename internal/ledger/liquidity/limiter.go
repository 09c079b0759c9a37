package liquidity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgercore/pkg/utils"
)

// Limiter enforces "at most one outstanding request per (account,
// currency)" (spec.md §4.6). It is the same single-flight concern the
// teacher already solved for per-workspace call caps; RedisLimiter reuses
// its Lua scripts directly rather than re-implementing the lock.
type Limiter interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLimiter wraps pkg/utils's Redis single-flight script with a fixed
// cap of 1 concurrent outstanding request per key.
type RedisLimiter struct {
	Client *redis.Client
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.Client, key, 1, ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.Client, key)
}

var _ Limiter = (*RedisLimiter)(nil)

package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	keyPrefix                = "ratelimit:provider:"
	// A window key outlives its second so late INCRs never recreate it without a TTL.
	windowTTL = 2 * time.Second
)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed one-second window per provider, shared by every
// process pointing at the same Redis.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow counts one call in the current window for key and reports whether it
// fits under the limit. Rejected calls still count.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := r.take(ctx, key)
	return allowed, err
}

// Wait blocks until key has room in a window, sleeping to the next window
// boundary after each rejection.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, windowStart, err := r.take(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		untilNext := windowStart.Add(time.Second).Sub(r.now())
		if untilNext <= 0 {
			continue
		}
		if err := r.sleep(ctx, untilNext); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) take(ctx context.Context, key string) (bool, time.Time, error) {
	if r == nil || r.client == nil {
		return false, time.Time{}, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false, time.Time{}, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	windowStart := r.now().UTC().Truncate(time.Second)
	windowKey := fmt.Sprintf("%s%s:%d", keyPrefix, normalizedKey, windowStart.Unix())

	var count *goredis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		count = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, windowTTL)
		return nil
	})
	if err != nil {
		return false, windowStart, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return count.Val() <= r.limitPerSec, windowStart, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

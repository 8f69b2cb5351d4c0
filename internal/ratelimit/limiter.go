package ratelimit

import "context"

// RateLimiter controls request throughput per provider.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

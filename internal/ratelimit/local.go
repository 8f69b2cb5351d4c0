package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const defaultLimitPerSec = 100

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter keeps one token bucket per key inside the process.
type LocalRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	limitPerSec int
}

func NewLocalRateLimiter(limitPerSec int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	return &LocalRateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		limitPerSec: limitPerSec,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	limiter, err := l.limiter(key)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	limiter, err := l.limiter(key)
	if err != nil {
		return err
	}
	return limiter.Wait(ctx)
}

func (l *LocalRateLimiter) limiter(key string) (*rate.Limiter, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[normalized]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.limiters[normalized] = limiter
	}
	return limiter, nil
}

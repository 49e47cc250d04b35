package redis

import (
	"context"
	"fmt"
	"time"

	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// WindowCounter increments key and returns the new count together with the
// time left before the key expires. The first hit starts the window.
type WindowCounter interface {
	HitWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiter is a fixed-window limiter over a shared Redis counter, so every
// gateway replica enforces the same budget.
type RateLimiter struct {
	counter WindowCounter
}

func NewRateLimiter(counter WindowCounter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	count, left, err := r.counter.HitWindow(ctx, key, window)
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count > int64(limit) {
		if left <= 0 {
			left = window
		}
		return false, left, nil
	}
	return true, 0, nil
}

// DispatchKey scopes a window to one user on one route.
func DispatchKey(userID, route string) string {
	return fmt.Sprintf("rl:%s:%s", route, userID)
}

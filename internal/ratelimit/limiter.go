package ratelimit

import "context"

// RateLimiter budgets sends per key, typically the messaging account.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

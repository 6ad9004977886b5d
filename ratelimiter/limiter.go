// Package ratelimiter throttles site traffic per client key.
package ratelimiter

import (
	"context"
	"time"
)

// Decision is the outcome of taking one request from a key's allowance.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one unit of allowance for key.
type Limiter interface {
	Take(ctx context.Context, key string) Decision
}

// Chain consults every limiter in order and returns the first refusal.
// The allowed decision with the least remaining allowance wins otherwise.
type Chain []Limiter

func (c Chain) Take(ctx context.Context, key string) Decision {
	result := Decision{Allowed: true, Remaining: -1}
	for _, l := range c {
		if l == nil {
			continue
		}
		d := l.Take(ctx, key)
		if !d.Allowed {
			return d
		}
		if result.Remaining < 0 || d.Remaining < result.Remaining {
			result = d
		}
	}
	return result
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

// Package ratelimit throttles per-user operations such as mail purchases.
package ratelimit

import (
	"context"
	"time"
)

// Limiter consumes one unit for key. When the unit is refused, retryAfter
// says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

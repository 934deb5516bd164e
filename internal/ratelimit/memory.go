package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedKeys = 10000

// MemoryLimiter is a per-process token bucket keyed by caller.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewMemoryLimiter allows perMinute operations per key per minute, all of
// which may be spent at once.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
}

func (m *MemoryLimiter) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) >= maxTrackedKeys {
			m.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = l
	}
	return l
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if m.burst <= 0 {
		return true, 0, nil
	}
	r := m.limiter(key).Reserve()
	delay := r.Delay()
	if delay == 0 {
		return true, 0, nil
	}
	r.Cancel()
	return false, delay, nil
}

var _ Limiter = (*MemoryLimiter)(nil)

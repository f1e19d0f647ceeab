// Package server throttles chatMessage frames per connection. Joins, renames
// and control frames are never limited.
package server

import (
	"sync"
	"time"
)

// rateLimiter spaces chat messages by tracking the theoretical arrival time of
// the next message: each accepted message pushes it one emission interval
// further, and up to Burst messages may arrive ahead of it.
type rateLimiter struct {
	mu        sync.Mutex
	emission  time.Duration
	tolerance time.Duration
	next      time.Time
	now       func() time.Time
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}

	emission := interval / time.Duration(burst)
	if emission <= 0 {
		emission = time.Nanosecond
	}

	return &rateLimiter{
		emission:  emission,
		tolerance: emission * time.Duration(burst-1),
		next:      now(),
		now:       now,
	}
}

// allow reports whether one more chat message fits in the budget, and spends
// it if so.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	next := rl.next
	if next.Before(now) {
		next = now
	}
	if next.Sub(now) > rl.tolerance {
		return false
	}

	rl.next = next.Add(rl.emission)
	return true
}

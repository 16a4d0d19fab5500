package otp

import (
	"sync"
	"time"
)

// RateLimiter is a process-local sliding-window counter. It is best-effort
// abuse mitigation only: counters are not shared across instances, and the
// primary security boundary is the OTP itself plus data-layer access control.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	entries map[string][]time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:  window,
		limit:   limit,
		entries: map[string][]time.Time{},
	}
}

// Allow records one hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[key][:0]
	for _, t := range r.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.entries[key] = kept
		return false
	}

	r.entries[key] = append(kept, now)
	return true
}

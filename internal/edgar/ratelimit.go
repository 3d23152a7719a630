package edgar

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces outbound requests to a fixed requests-per-second ceiling.
// One limiter is shared by every goroutine using a Client.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

// NewRateLimiter creates a limiter allowing perSecond requests per second
func NewRateLimiter(perSecond float64) *RateLimiter {
	var interval time.Duration
	if perSecond > 0 {
		interval = time.Duration(float64(time.Second) / perSecond)
	}
	return &RateLimiter{interval: interval}
}

// Wait blocks until the next request may be issued
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wait := r.interval - time.Since(r.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastCall = time.Now()
	return nil
}

package forge

import (
	"context"
	"sync"
	"time"

	"github.com/openjdk/jmerge/pkg/clock"
)

// RateLimiter is a token bucket limiter in front of the forge API. The
// authenticated GitHub limit is 5000 requests per hour; a bot reconciling
// many pull requests gets there faster than one would think.
type RateLimiter struct {
	clk        clock.Clock
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a rate limiter allowing maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(maxRequests, window, clock.NewRealClock())
}

// NewRateLimiterWithClock creates a rate limiter with a custom clock.
func NewRateLimiterWithClock(maxRequests int, window time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		clk:        clk,
		tokens:     maxRequests,
		maxTokens:  maxRequests,
		refillRate: window / time.Duration(maxRequests),
		lastRefill: clk.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.tryTakeToken() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clk.After(r.refillRate):
		}
	}
}

func (r *RateLimiter) tryTakeToken() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	elapsed := r.clk.Since(r.lastRefill)
	if add := int(elapsed / r.refillRate); add > 0 {
		r.tokens += add
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.clk.Since(r.lastRefill)
	if add := int(elapsed / r.refillRate); add > 0 {
		r.tokens += add
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = r.clk.Now()
	}
	return r.tokens
}

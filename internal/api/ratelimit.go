package api

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-host rate limiting using token bucket algorithm.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst.
// rate is requests per second, burst is the maximum burst size. A
// non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  limit,
		burstLimit: burst,
	}
}

// DefaultRateLimiter returns a rate limiter with default settings.
// Default: 5 requests/second, burst of 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// Allow checks if a request to the host is allowed.
func (r *RateLimiter) Allow(host string) bool {
	return r.getLimiter(host).Allow()
}

// Wait blocks until a request to the host is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	return r.getLimiter(host).Wait(ctx)
}

// getLimiter returns the limiter for the given host, creating one if needed.
func (r *RateLimiter) getLimiter(host string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[host]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[host] = limiter
	return limiter
}

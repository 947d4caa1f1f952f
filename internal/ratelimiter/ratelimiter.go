package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests with a token bucket.
//
// It wraps golang.org/x/time/rate and is used by the transfer package to
// keep the sequential download phase under a configured request rate, so a
// large entry listing does not hammer the public file repository.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a new RateLimiter with the specified rate and burst capacity.
//
// Special cases:
//   - requestsPerSecond = 0: no pacing at all (Wait never blocks)
//   - burst = 0 with a non-zero rate: burst of 1
//
// Example:
//
//	// At most 5 repository requests per second, 5 at once
//	limiter := New(5, 5)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed right now, consuming a token
// if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns:
//   - nil if a token was acquired
//   - context error if the context was cancelled before a token was available
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter was built without a rate.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

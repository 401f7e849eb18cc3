// Package ratelimiter throttles requests a storage backend sends to a remote
// object store.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// unlimited stands in for "no throttling"; rate.Inf skips burst accounting
// entirely, which makes Tokens meaningless for diagnostics.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket shared by every request of one backend.
//
// Remote backends call Wait before each GetObject or HeadObject. A resolution
// pass that sniffs many unknown files therefore spreads its requests over
// time instead of bursting past the provider's request quota.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
}

// New creates a limiter.
//
// Parameters:
//   - requestsPerSecond: Sustained request rate. Zero disables throttling.
//   - burst: Requests served immediately from a full bucket. Zero means the
//     same as requestsPerSecond.
//
// Example:
//
//	// 50 requests/s with bursts of 100
//	limiter := New(50, 100)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{
			limiter: rate.NewLimiter(rate.Limit(unlimited), unlimited),
		}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
		enabled: true,
	}
}

// Enabled reports whether the limiter throttles at all.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// Allow takes a token without waiting and reports whether one was available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns:
//   - nil if a token was acquired
//   - ctx's error, or a rate error when the wait would outlast ctx's deadline
func (r *RateLimiter) Wait(ctx context.Context) error {
	if !r.enabled {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

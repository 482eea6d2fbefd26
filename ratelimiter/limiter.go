// Package ratelimiter provides distributed rate-limiting algorithms backed by a
// shared store that executes Lua scripts atomically.
//
// It includes Token Bucket, Sliding Window, Fixed Window and Leaky Bucket
// strategies, and a RateLimiter facade that picks one of them per instance.
//
// The package defines three core abstractions:
//   - Limiter: one rate-limiting algorithm (e.g., TokenBucketLimiter, FixedWindowLimiter)
//   - Store: the atomic script executor the algorithms run on (e.g., store.Client)
//   - Result: the outcome of a check, always fully populated, useful for HTTP headers
//
// A check never fails because of the store. When the store cannot be reached the
// request is admitted (fail open); when the store answers with something that
// cannot be decoded the request is denied (fail closed).
package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result contains the outcome of a rate limit check.
//
// It provides the necessary data to populate standard rate-limiting HTTP headers
// such as `X-RateLimit-Limit`, `X-RateLimit-Remaining`, and `X-RateLimit-Reset`.
//
// After a fail-open decision only Allowed is authoritative.
type Result struct {
	// Allowed indicates whether the request is permitted.
	Allowed bool
	// Remaining is the number of requests left, never negative and never above Limit.
	Remaining int64
	// Reset is the instant at which the limit is expected to be replenished.
	Reset time.Time
	// Limit is the capacity or request ceiling that applied to this check.
	Limit int64
}

// ResetMillis returns Reset as Unix epoch milliseconds, the wire representation.
func (r Result) ResetMillis() int64 {
	return r.Reset.UnixMilli()
}

// RetryAfter returns how long a denied caller should wait, measured from now.
// It returns zero when Reset is already in the past.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter defines the interface for rate-limiting algorithms.
//
// Implementations hold no per-key state in process; every call is one atomic
// round trip to the Store. Check never returns an error: store failures are
// folded into the Result according to the fail-open / fail-closed policy.
type Limiter interface {
	// Algorithm reports which algorithm the limiter implements.
	Algorithm() Algorithm

	// Check consumes one unit for clientID within serviceID.
	//
	// Parameters:
	//   - ctx: context for cancellation and timeouts
	//   - serviceID: tenant namespace
	//   - clientID: caller identity within the tenant
	//   - cfg: per-call overrides; unset fields use the limiter defaults
	Check(ctx context.Context, serviceID, clientID string, cfg Config) Result
}

// Store defines the atomic script executor the limiters depend on.
//
// The store must run each script as one indivisible unit; that is the only
// thing that makes concurrent checks on the same key correct.
type Store interface {
	// Eval runs script against keys with args and returns the raw reply.
	// Any error is treated as the store being unavailable.
	Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error)
}

package ratelimiter

import (
	"context"
	"strconv"
)

// RateLimiter is the facade most callers use. It is bound to one algorithm at
// construction and forwards every check to that algorithm's Limiter.
//
// A call may route to another algorithm with WithAlgorithm. That works only
// for algorithms whose defaults are valid; any other override falls back to
// the selected algorithm.
//
// Example:
//
//	rl, err := ratelimiter.New(client, ratelimiter.AlgorithmSlidingWindow, ratelimiter.StandardDefaults)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := rl.Check(ctx, "svc", "user-1", ratelimiter.WithLimit(10))
type RateLimiter struct {
	algorithm Algorithm
	limiters  map[Algorithm]Limiter
	logger    Logger
}

// New builds a RateLimiter for algorithm. The empty algorithm selects the
// token bucket. Only the defaults the selected algorithm uses are validated;
// an unknown algorithm or an invalid default yields a *ConfigurationError.
func New(store Store, algorithm Algorithm, defaults Defaults, opts ...Option) (*RateLimiter, error) {
	if algorithm == "" {
		algorithm = AlgorithmTokenBucket
	}
	if !algorithm.Valid() {
		return nil, &ConfigurationError{Field: "algorithm", Reason: "unknown algorithm " + strconv.Quote(string(algorithm))}
	}

	selected, err := build(store, algorithm, defaults, opts)
	if err != nil {
		return nil, err
	}

	rl := &RateLimiter{
		algorithm: algorithm,
		limiters:  map[Algorithm]Limiter{algorithm: selected},
		logger:    newOptions(opts...).logger,
	}
	for _, a := range Algorithms {
		if a == algorithm {
			continue
		}
		if l, err := build(store, a, defaults, opts); err == nil {
			rl.limiters[a] = l
		}
	}
	return rl, nil
}

func build(store Store, a Algorithm, d Defaults, opts []Option) (Limiter, error) {
	switch a {
	case AlgorithmTokenBucket:
		return NewTokenBucket(store, d.Capacity, d.RefillRate, opts...)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(store, d.Limit, d.WindowSize, opts...)
	case AlgorithmFixedWindow:
		return NewFixedWindow(store, d.Limit, d.WindowSize, opts...)
	case AlgorithmLeakyBucket:
		return NewLeakyBucket(store, d.Capacity, d.LeakRate, opts...)
	}
	return nil, &ConfigurationError{Field: "algorithm", Reason: "unknown algorithm " + strconv.Quote(string(a))}
}

// Algorithm reports the algorithm selected at construction.
func (rl *RateLimiter) Algorithm() Algorithm {
	return rl.algorithm
}

// Check consumes one unit for clientID within serviceID and never fails; see
// the package documentation for how store failures are folded into the Result.
func (rl *RateLimiter) Check(ctx context.Context, serviceID, clientID string, opts ...CheckOption) Result {
	cfg := NewConfig(opts...)
	return rl.limiterFor(cfg.Algorithm).Check(ctx, serviceID, clientID, cfg)
}

// Allow is Check reduced to its decision.
func (rl *RateLimiter) Allow(ctx context.Context, serviceID, clientID string, opts ...CheckOption) bool {
	return rl.Check(ctx, serviceID, clientID, opts...).Allowed
}

func (rl *RateLimiter) limiterFor(a Algorithm) Limiter {
	if a == "" || a == rl.algorithm {
		return rl.limiters[rl.algorithm]
	}
	if l, ok := rl.limiters[a]; ok {
		return l
	}
	rl.logger.Debugf("ratelimiter: algorithm %q unavailable, using %s", a, rl.algorithm)
	return rl.limiters[rl.algorithm]
}

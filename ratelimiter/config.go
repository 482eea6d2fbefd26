package ratelimiter

import (
	"fmt"
	"math"
	"time"
)

// Config carries per-call overrides. A nil field means "use the limiter
// default"; this keeps an explicit zero refill or leak rate distinguishable
// from an unset one.
//
// Build it with CheckOptions rather than by hand:
//
//	res := rl.Check(ctx, "svc", "user-1", ratelimiter.WithCapacity(20), ratelimiter.WithRefillRate(2))
type Config struct {
	// Algorithm routes the call to another strategy of the same RateLimiter.
	// Limiters themselves ignore it.
	Algorithm  Algorithm
	Capacity   *int64
	RefillRate *float64
	Limit      *int64
	WindowSize *time.Duration
	LeakRate   *float64
}

// CheckOption sets one field of a Config.
type CheckOption func(*Config)

// NewConfig builds a Config from options.
func NewConfig(opts ...CheckOption) Config {
	var cfg Config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithAlgorithm routes a single call to another algorithm.
func WithAlgorithm(a Algorithm) CheckOption {
	return func(c *Config) { c.Algorithm = a }
}

// WithCapacity overrides the bucket size of the token and leaky buckets.
func WithCapacity(n int64) CheckOption {
	return func(c *Config) { c.Capacity = &n }
}

// WithRefillRate overrides the token bucket refill rate in tokens per second.
func WithRefillRate(r float64) CheckOption {
	return func(c *Config) { c.RefillRate = &r }
}

// WithLimit overrides the request ceiling of the window algorithms.
func WithLimit(n int64) CheckOption {
	return func(c *Config) { c.Limit = &n }
}

// WithWindowSize overrides the window length of the window algorithms.
func WithWindowSize(d time.Duration) CheckOption {
	return func(c *Config) { c.WindowSize = &d }
}

// WithLeakRate overrides the leaky bucket drain rate in units per second.
func WithLeakRate(r float64) CheckOption {
	return func(c *Config) { c.LeakRate = &r }
}

// Empty reports whether cfg overrides nothing.
func (c Config) Empty() bool {
	return c.Algorithm == "" && c.Capacity == nil && c.RefillRate == nil &&
		c.Limit == nil && c.WindowSize == nil && c.LeakRate == nil
}

// Defaults are the strategy parameters used when a call does not override them.
type Defaults struct {
	// Capacity is the bucket size of the token and leaky buckets.
	Capacity int64
	// RefillRate is the token bucket refill rate, tokens per second.
	RefillRate float64
	// Limit is the request ceiling of the window algorithms.
	Limit int64
	// WindowSize is the window length of the window algorithms.
	WindowSize time.Duration
	// LeakRate is the leaky bucket drain rate, units per second.
	LeakRate float64
}

// StandardDefaults are the parameters the hosted service runs with.
var StandardDefaults = Defaults{
	Capacity:   100,
	RefillRate: 10,
	Limit:      100,
	WindowSize: time.Minute,
	LeakRate:   10,
}

// validate checks only the fields the given algorithm uses.
func (d Defaults) validate(a Algorithm) error {
	switch a {
	case AlgorithmTokenBucket:
		if err := checkCapacity("capacity", d.Capacity); err != nil {
			return err
		}
		return checkRate("refillRate", d.RefillRate)
	case AlgorithmLeakyBucket:
		if err := checkCapacity("capacity", d.Capacity); err != nil {
			return err
		}
		return checkRate("leakRate", d.LeakRate)
	case AlgorithmSlidingWindow, AlgorithmFixedWindow:
		if err := checkCapacity("limit", d.Limit); err != nil {
			return err
		}
		return checkWindow(d.WindowSize)
	}
	return &ConfigurationError{Field: "algorithm", Reason: fmt.Sprintf("unknown algorithm %q", a)}
}

func checkCapacity(field string, n int64) error {
	if n <= 0 {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return nil
}

func checkRate(field string, r float64) error {
	if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be a finite non-negative number, got %v", r)}
	}
	return nil
}

func checkWindow(d time.Duration) error {
	if d < time.Millisecond {
		return &ConfigurationError{Field: "windowSize", Reason: fmt.Sprintf("must be at least 1ms, got %s", d)}
	}
	return nil
}

// intOr returns *p when it is a valid positive override, else def.
func intOr(p *int64, def int64) (int64, bool) {
	if p == nil {
		return def, true
	}
	if *p <= 0 {
		return def, false
	}
	return *p, true
}

// rateOr returns *p when it is a valid non-negative override, else def.
func rateOr(p *float64, def float64) (float64, bool) {
	if p == nil {
		return def, true
	}
	if checkRate("", *p) != nil {
		return def, false
	}
	return *p, true
}

// windowOr returns *p when it is at least one millisecond, else def.
func windowOr(p *time.Duration, def time.Duration) (time.Duration, bool) {
	if p == nil {
		return def, true
	}
	if checkWindow(*p) != nil {
		return def, false
	}
	return *p, true
}

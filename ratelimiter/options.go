package ratelimiter

import (
	"time"
)

// Logger is the interface used for logging inside the rate limiter.
//
// Implement this interface to provide your own logging backend. The adapters
// directory wraps zap, zerolog, logrus and the standard log package.
//
// Example:
//
//	type MyLogger struct{}
//	func (l *MyLogger) Debugf(format string, args ...interface{}) { ... }
//	func (l *MyLogger) Errorf(format string, args ...interface{}) { ... }
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// MetricsRecorder receives counters and observations from the limiters.
// It never has to be nil-checked; the default discards everything.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// Metric names emitted by the limiters.
const (
	// MetricCheck counts checks, tagged with "algorithm" and "outcome".
	MetricCheck = "ratelimit.check"
	// MetricLatency observes the store round trip in seconds, tagged with "algorithm".
	MetricLatency = "ratelimit.latency"
)

// Outcomes reported in the "outcome" tag of MetricCheck.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
)

// DefaultRecordTTL is how long a bucket record lives in the store. It is fixed
// and does not follow the configured window size.
const DefaultRecordTTL = time.Hour

// Option configures a limiter or the RateLimiter facade.
//
// Example:
//
//	rl, err := ratelimiter.New(st, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults,
//	    ratelimiter.WithLogger(myLogger),
//	)
type Option func(*options)

type options struct {
	logger    Logger
	recorder  MetricsRecorder
	clock     func() time.Time
	recordTTL time.Duration
}

func newOptions(opts ...Option) options {
	o := options{
		logger:    NopLogger(),
		recorder:  NopRecorder(),
		clock:     time.Now,
		recordTTL: DefaultRecordTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger returns an Option to set a custom Logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder returns an Option to set a custom MetricsRecorder.
func WithRecorder(r MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock returns an Option that replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithRecordTTL overrides the lifetime of bucket records in the store.
// Non-positive values are ignored.
func WithRecordTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.recordTTL = ttl
		}
	}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

// NopRecorder returns a MetricsRecorder that discards everything.
func NopRecorder() MetricsRecorder {
	return noopRecorder{}
}

// noopLogger is a private default logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

type noopRecorder struct{}

func (noopRecorder) Add(name string, value float64, tags map[string]string)     {}
func (noopRecorder) Observe(name string, value float64, tags map[string]string) {}

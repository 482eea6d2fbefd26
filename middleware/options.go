// Package middleware holds what the gin and net/http middlewares share: how a
// caller is identified, how per-request overrides are read, and how a Result
// is mapped onto response headers and a 429 body.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
)

// Request headers read by the middlewares.
const (
	HeaderServiceID       = "X-Service-Id"
	HeaderClientID        = "X-Client-Id"
	HeaderServicePassword = "X-Service-Password"
	HeaderCapacity        = "X-Rate-Limit-Capacity"
	HeaderRefillRate      = "X-Rate-Limit-Refill"
)

// Response headers written by the middlewares.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultServiceID is used when a request names no service.
const DefaultServiceID = "default"

// ErrorExceeded is a sentinel error passed to the ErrorHandler when the rate
// limit is surpassed.
var ErrorExceeded = errors.New("rate limit exceeded")

// Checker is what the rate limit middleware needs from a limiter.
// *ratelimiter.RateLimiter and *limitly.Client satisfy it.
type Checker interface {
	Check(ctx context.Context, serviceID, clientID string, opts ...ratelimiter.CheckOption) ratelimiter.Result
}

// Registrar is what the registry middleware needs. *registry.Registry
// satisfies it.
type Registrar interface {
	Check(ctx context.Context, serviceID, password, clientIP string) registry.Status
}

// Identity names the caller of a request.
type Identity struct {
	ServiceID string
	ClientID  string
}

// IdentityFunc extracts the caller of an incoming HTTP request. Common
// implementations use a header, an API key or the client's IP address.
type IdentityFunc func(r *http.Request) (Identity, error)

// OverridesFunc turns a request into per-call limiter overrides.
type OverridesFunc func(r *http.Request) []ratelimiter.CheckOption

// ErrorHandler is a function type that defines how to respond to a client when
// a rate limit is exceeded. This gives the user full control over the status code,
// headers, and body of the error response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error, result ratelimiter.Result)

// Config holds all configurable parameters for the middleware.
// Users interact with it via functional options.
type Config struct {
	IdentityFunc  IdentityFunc
	OverridesFunc OverridesFunc
	ErrorHandler  ErrorHandler
	Logger        ratelimiter.Logger
	Clock         func() time.Time
}

// Option is a function type that applies a configuration setting to a Config struct.
type Option func(*Config)

// NewConfig creates a Config instance with default settings and then applies
// any provided functional options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		IdentityFunc:  DefaultIdentity,
		OverridesFunc: HeaderOverrides,
		Logger:        ratelimiter.NopLogger(),
		Clock:         time.Now,
	}
	cfg.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error, result ratelimiter.Result) {
		WriteTooManyRequests(w, result, cfg.Clock())
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithIdentityFunc returns an Option that sets a custom function for caller
// identification.
func WithIdentityFunc(f IdentityFunc) Option {
	return func(c *Config) {
		if f != nil {
			c.IdentityFunc = f
		}
	}
}

// WithOverridesFunc returns an Option that replaces header-driven overrides.
func WithOverridesFunc(f OverridesFunc) Option {
	return func(c *Config) {
		if f != nil {
			c.OverridesFunc = f
		}
	}
}

// WithErrorHandler returns an Option that sets a custom handler for rate limit errors.
// This is useful for sending a different body or logging detailed information.
func WithErrorHandler(f ErrorHandler) Option {
	return func(c *Config) {
		if f != nil {
			c.ErrorHandler = f
		}
	}
}

// WithLogger returns an Option that sets a custom logger.
func WithLogger(l ratelimiter.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithClock returns an Option that replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	}
}

// DefaultIdentity reads X-Service-Id and X-Client-Id. The service defaults to
// "default" and the client to the remote IP, then "unknown".
func DefaultIdentity(r *http.Request) (Identity, error) {
	id := Identity{
		ServiceID: r.Header.Get(HeaderServiceID),
		ClientID:  r.Header.Get(HeaderClientID),
	}
	if id.ServiceID == "" {
		id.ServiceID = DefaultServiceID
	}
	if id.ClientID == "" {
		id.ClientID = ClientIP(r)
	}
	if id.ClientID == "" {
		id.ClientID = "unknown"
	}
	return id, nil
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// HeaderOverrides reads X-Rate-Limit-Capacity and X-Rate-Limit-Refill.
// Values that do not parse are ignored.
func HeaderOverrides(r *http.Request) []ratelimiter.CheckOption {
	var opts []ratelimiter.CheckOption
	if v := r.Header.Get(HeaderCapacity); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			opts = append(opts, ratelimiter.WithCapacity(n))
		}
	}
	if v := r.Header.Get(HeaderRefillRate); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			opts = append(opts, ratelimiter.WithRefillRate(f))
		}
	}
	return opts
}

// SetHeaders writes the X-RateLimit-* headers. Reset is in epoch seconds,
// rounded up.
func SetHeaders(h http.Header, res ratelimiter.Result) {
	h.Set(HeaderLimit, strconv.FormatInt(res.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(max(0, res.Remaining), 10))
	h.Set(HeaderReset, strconv.FormatInt(ResetSeconds(res), 10))
}

// ResetSeconds is res.Reset as epoch seconds, rounded up.
func ResetSeconds(res ratelimiter.Result) int64 {
	return int64(math.Ceil(float64(res.ResetMillis()) / 1000))
}

// RetryAfterSeconds is the Retry-After value for a denied result: whole
// seconds until reset, at least 1.
func RetryAfterSeconds(res ratelimiter.Result, now time.Time) int64 {
	secs := int64(math.Ceil(res.RetryAfter(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// TooManyRequestsBody is the JSON body of a 429 response. Reset is in epoch
// milliseconds.
type TooManyRequestsBody struct {
	Message   string `json:"message"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Reset     int64  `json:"reset"`
}

// NewTooManyRequestsBody builds the 429 body for res.
func NewTooManyRequestsBody(res ratelimiter.Result) TooManyRequestsBody {
	return TooManyRequestsBody{
		Message:   "Too many requests",
		Limit:     res.Limit,
		Remaining: 0,
		Reset:     res.ResetMillis(),
	}
}

// WriteTooManyRequests writes Retry-After and a 429 JSON body.
func WriteTooManyRequests(w http.ResponseWriter, res ratelimiter.Result, now time.Time) {
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(RetryAfterSeconds(res, now), 10))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(NewTooManyRequestsBody(res))
}

package limitly

import (
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisURL is used when neither WithRedisURL nor WithRedis is given.
const DefaultRedisURL = "redis://localhost:6379"

// Config holds all configurable parameters of a Client.
// Users interact with it via functional options.
type Config struct {
	RedisURL    string
	Redis       redis.UniversalClient
	RegistryURL string
	ServiceID   string
	Algorithm   ratelimiter.Algorithm
	Defaults    ratelimiter.Defaults
	Hasher      registry.Hasher
	Logger      ratelimiter.Logger
	Recorder    ratelimiter.MetricsRecorder

	ConnectAttempts int
	RetryDelay      time.Duration
	Timeout         time.Duration
	// LazyConnect skips the startup connection; the first check connects.
	// Checks that arrive while that connect is in flight fail open.
	LazyConnect bool
}

// Option is a function type that applies a configuration setting to a Config struct.
type Option func(*Config)

// NewConfig creates a Config instance with default settings and then applies
// any provided functional options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		RedisURL:  DefaultRedisURL,
		ServiceID: "default",
		Algorithm: ratelimiter.AlgorithmTokenBucket,
		Defaults:  ratelimiter.StandardDefaults,
		Hasher:    registry.SHA256Hasher{},
		Logger:    ratelimiter.NopLogger(),
		Recorder:  ratelimiter.NopRecorder(),

		ConnectAttempts: store.DefaultConnectAttempts,
		RetryDelay:      store.DefaultRetryDelay,
		Timeout:         store.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithRedisURL sets the counter store, e.g. "redis://localhost:6379/0".
func WithRedisURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.RedisURL = url
		}
	}
}

// WithRedis uses an existing go-redis client as the counter store. It takes
// precedence over WithRedisURL and is closed by Client.Close.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(c *Config) {
		c.Redis = rdb
	}
}

// WithRegistryURL keeps the service registry in its own Redis. Without it the
// registry lives in process memory.
func WithRegistryURL(url string) Option {
	return func(c *Config) {
		c.RegistryURL = url
	}
}

// WithServiceID sets the service used when Check is given an empty one.
func WithServiceID(id string) Option {
	return func(c *Config) {
		if id != "" {
			c.ServiceID = id
		}
	}
}

// WithAlgorithm selects the default algorithm.
func WithAlgorithm(a ratelimiter.Algorithm) Option {
	return func(c *Config) {
		c.Algorithm = a
	}
}

// WithDefaults replaces ratelimiter.StandardDefaults.
func WithDefaults(d ratelimiter.Defaults) Option {
	return func(c *Config) {
		c.Defaults = d
	}
}

// WithHasher sets how new registry entries hash their password.
func WithHasher(h registry.Hasher) Option {
	return func(c *Config) {
		if h != nil {
			c.Hasher = h
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

// WithRecorder sets where check and registry metrics go.
func WithRecorder(r ratelimiter.MetricsRecorder) Option {
	return func(c *Config) {
		if r != nil {
			c.Recorder = r
		}
	}
}

// WithConnectAttempts sets how often New tries to reach the counter store.
func WithConnectAttempts(n int) Option {
	return func(c *Config) {
		c.ConnectAttempts = n
	}
}

// WithRetryDelay sets the pause between connection attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithTimeout bounds every store round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLazyConnect makes New return without contacting the store. The first
// check connects, and every check running concurrently with that connect is
// admitted without touching the store, so a burst on a cold client is not
// limited until the connection is up.
func WithLazyConnect() Option {
	return func(c *Config) {
		c.LazyConnect = true
	}
}

// Package config loads the limitly service configuration.
package config

import (
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
)

// Environments accepted in server.env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Env  string `mapstructure:"env" validate:"oneof=development production test"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// RedisConfig configures the counter store.
type RedisConfig struct {
	URL             string        `mapstructure:"url" validate:"required,redis_url"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"min=1"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RegistryConfig configures the service registry. An empty URL keeps the
// registry in process memory.
type RegistryConfig struct {
	URL    string `mapstructure:"url" validate:"omitempty,redis_url"`
	Hasher string `mapstructure:"hasher" validate:"oneof=sha256 argon2id"`
}

// LimiterConfig holds the default limits.
type LimiterConfig struct {
	Algorithm  string        `mapstructure:"algorithm" validate:"algorithm"`
	Capacity   int64         `mapstructure:"capacity" validate:"gt=0"`
	RefillRate float64       `mapstructure:"refill_rate" validate:"gte=0"`
	Limit      int64         `mapstructure:"limit" validate:"gt=0"`
	WindowSize time.Duration `mapstructure:"window_size" validate:"gt=0"`
	LeakRate   float64       `mapstructure:"leak_rate" validate:"gte=0"`
	RecordTTL  time.Duration `mapstructure:"record_ttl" validate:"gt=0"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format  string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	Backend string `mapstructure:"backend" validate:"oneof=zap zerolog logrus std"`
}

// SetDefaults fills fields that depend on other fields.
func (c *Config) SetDefaults() {
	if c.Log.Format == "" {
		if c.Production() {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "console"
		}
	}
}

// Production reports whether server.env is production.
func (c *Config) Production() bool {
	return c.Server.Env == EnvProduction
}

// Algorithm returns the parsed limiter.algorithm.
func (c *Config) Algorithm() ratelimiter.Algorithm {
	a, _ := ratelimiter.ParseAlgorithm(c.Limiter.Algorithm)
	return a
}

// Defaults returns the limiter defaults.
func (c *Config) Defaults() ratelimiter.Defaults {
	return ratelimiter.Defaults{
		Capacity:   c.Limiter.Capacity,
		RefillRate: c.Limiter.RefillRate,
		Limit:      c.Limiter.Limit,
		WindowSize: c.Limiter.WindowSize,
		LeakRate:   c.Limiter.LeakRate,
	}
}

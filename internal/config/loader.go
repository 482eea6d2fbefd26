package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIMITLY_REDIS_URL.
const EnvPrefix = "LIMITLY"

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"server.port":  "PORT",
	"server.env":   "NODE_ENV",
	"redis.url":    "REDIS_URL",
	"registry.url": "REGISTRY_REDIS_URL",
}

var defaults = map[string]interface{}{
	"server.port":             5000,
	"server.env":              EnvDevelopment,
	"server.shutdown_timeout": "10s",
	"redis.url":               "redis://localhost:6379",
	"redis.connect_attempts":  5,
	"redis.retry_delay":       "1s",
	"redis.timeout":           "5s",
	"registry.url":            "",
	"registry.hasher":         "sha256",
	"limiter.algorithm":       "token-bucket",
	"limiter.capacity":        100,
	"limiter.refill_rate":     10,
	"limiter.limit":           100,
	"limiter.window_size":     "1m",
	"limiter.leak_rate":       10,
	"limiter.record_ttl":      "1h",
	"log.level":               "info",
	"log.format":              "",
	"log.backend":             "zap",
}

// NewViper returns a viper instance with defaults and environment bindings.
// configFile is read when set; otherwise limitly.yaml or limitly.yml in the
// working directory is used if present.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile == "" {
		configFile = findConfigFile(".")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key := range defaults {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if legacy, ok := legacyEnv[key]; ok {
			_ = v.BindEnv(key, prefixed, legacy)
			continue
		}
		_ = v.BindEnv(key, prefixed)
	}
	return v
}

func findConfigFile(dir string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, "limitly"+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads, defaults and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

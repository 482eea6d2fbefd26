// Package limitly is the embeddable rate limiter: a Client owns its Redis
// connection and checks requests without going through the hosted service.
//
// Example:
//
//	client, err := limitly.New(ctx,
//	    limitly.WithRedisURL("redis://localhost:6379"),
//	    limitly.WithAlgorithm(ratelimiter.AlgorithmSlidingWindow),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if !client.Allow(ctx, "", userID) {
//	    // reject
//	}
package limitly

import (
	"context"
	"errors"
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
)

// memoryCleanupInterval is how often the in-memory registry drops expired entries.
const memoryCleanupInterval = time.Minute

// Client checks rate limits against its own store. It satisfies
// middleware.Checker, and Registry can be handed to the registry middleware.
type Client struct {
	serviceID     string
	counters      *store.Client
	registryStore *store.Client
	stopMemory    context.CancelFunc
	limiter       *ratelimiter.RateLimiter
	registry      *registry.Registry
}

// New builds a Client and, unless WithLazyConnect is given, connects to the
// counter store with retries. A store that stays unreachable is an error
// wrapping store.ErrUnavailable; invalid limits are a
// *ratelimiter.ConfigurationError.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := NewConfig(opts...)

	storeOpts := []store.Option{
		store.WithLogger(cfg.Logger),
		store.WithConnectAttempts(cfg.ConnectAttempts),
		store.WithRetryDelay(cfg.RetryDelay),
		store.WithTimeout(cfg.Timeout),
	}

	var counters *store.Client
	if cfg.Redis != nil {
		counters = store.NewClient(cfg.Redis, append(storeOpts, store.WithName("rate-limit"))...)
	} else {
		var err error
		counters, err = store.NewClientFromURL(cfg.RedisURL, append(storeOpts, store.WithName("rate-limit"))...)
		if err != nil {
			return nil, err
		}
	}

	limiter, err := ratelimiter.New(counters, cfg.Algorithm, cfg.Defaults,
		ratelimiter.WithLogger(cfg.Logger),
		ratelimiter.WithRecorder(cfg.Recorder),
	)
	if err != nil {
		_ = counters.Close()
		return nil, err
	}

	c := &Client{
		serviceID: cfg.ServiceID,
		counters:  counters,
		limiter:   limiter,
	}

	var kv registry.KV
	if cfg.RegistryURL != "" {
		c.registryStore, err = store.NewClientFromURL(cfg.RegistryURL, append(storeOpts, store.WithName("registry"))...)
		if err != nil {
			_ = counters.Close()
			return nil, err
		}
		kv = c.registryStore
	} else {
		memCtx, cancel := context.WithCancel(context.Background())
		c.stopMemory = cancel
		kv = store.NewMemory(memCtx, memoryCleanupInterval)
	}
	c.registry = registry.New(kv,
		registry.WithHasher(cfg.Hasher),
		registry.WithLogger(cfg.Logger),
		registry.WithRecorder(cfg.Recorder),
	)

	if cfg.LazyConnect {
		return c, nil
	}
	if err := counters.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.registryStore != nil {
		// The registry is advisory; it reconnects on first use.
		if err := c.registryStore.Connect(ctx); err != nil {
			cfg.Logger.Warnf("limitly: registry store unavailable: %v", err)
		}
	}
	return c, nil
}

// Algorithm returns the default algorithm.
func (c *Client) Algorithm() ratelimiter.Algorithm {
	return c.limiter.Algorithm()
}

// Check consumes one unit for clientID within serviceID. An empty serviceID
// uses the configured one. It never fails; see ratelimiter.RateLimiter.Check.
func (c *Client) Check(ctx context.Context, serviceID, clientID string, opts ...ratelimiter.CheckOption) ratelimiter.Result {
	if serviceID == "" {
		serviceID = c.serviceID
	}
	return c.limiter.Check(ctx, serviceID, clientID, opts...)
}

// Allow reports only whether Check admitted the request.
func (c *Client) Allow(ctx context.Context, serviceID, clientID string, opts ...ratelimiter.CheckOption) bool {
	return c.Check(ctx, serviceID, clientID, opts...).Allowed
}

// CheckRegistry registers or validates serviceID against password. It never
// rejects; a collision is reported in the Status and logged.
func (c *Client) CheckRegistry(ctx context.Context, serviceID, password, clientIP string) registry.Status {
	if serviceID == "" {
		serviceID = c.serviceID
	}
	return c.registry.Check(ctx, serviceID, password, clientIP)
}

// Registry returns the service registry behind CheckRegistry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Ping checks the counter store.
func (c *Client) Ping(ctx context.Context) error {
	return c.counters.Ping(ctx)
}

// Connected reports whether the counter store is currently reachable.
func (c *Client) Connected() bool {
	return c.counters.Connected()
}

// Close releases the store connections and stops the in-memory registry.
func (c *Client) Close() error {
	if c.stopMemory != nil {
		c.stopMemory()
	}
	var errs []error
	errs = append(errs, c.counters.Close())
	if c.registryStore != nil {
		errs = append(errs, c.registryStore.Close())
	}
	return errors.Join(errs...)
}

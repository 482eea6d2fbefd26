package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the client cannot reach its Redis server.
var ErrUnavailable = errors.New("store: unavailable")

var errConnecting = errors.New("store: connect already in progress")

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Defaults used by NewClient.
const (
	DefaultConnectAttempts = 5
	DefaultRetryDelay      = time.Second
	DefaultTimeout         = 5 * time.Second
)

// Client wraps one Redis connection and tracks whether it is usable.
//
// It implements ratelimiter.Store for the limiters and the key-value
// operations the service registry needs. The counter store and the registry
// store are two separate Clients so an outage of one never affects the other.
//
// Operations never block on reconnection: when the client is disconnected a
// call makes a single connect attempt and gives up on failure. Only Connect
// retries.
type Client struct {
	rdb        redis.UniversalClient
	name       string
	attempts   int
	retryDelay time.Duration
	timeout    time.Duration
	logger     ratelimiter.Logger
	state      atomic.Int32
}

// Option configures a Client.
type Option func(*Client)

// WithName labels the client in log lines, e.g. "rate-limit" or "registry".
func WithName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithConnectAttempts sets how many times Connect tries before giving up.
func WithConnectAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRetryDelay sets the fixed pause between Connect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithTimeout bounds every operation. A timed out call is treated like an
// unreachable server.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for connection and operation failures.
func WithLogger(l ratelimiter.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps an existing go-redis client. The client starts disconnected;
// call Connect at startup or let the first operation connect lazily.
func NewClient(rdb redis.UniversalClient, opts ...Option) *Client {
	c := &Client{
		rdb:        rdb,
		name:       "redis",
		attempts:   DefaultConnectAttempts,
		retryDelay: DefaultRetryDelay,
		timeout:    DefaultTimeout,
		logger:     ratelimiter.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromURL builds a Client from a redis:// or rediss:// URL.
func NewClientFromURL(url string, opts ...Option) (*Client, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	o.ContextTimeoutEnabled = true
	return NewClient(redis.NewClient(o), opts...), nil
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether the last operation reached the server.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect establishes the connection, retrying with a fixed delay. It is meant
// for startup; an error wraps ErrUnavailable and callers usually treat it as
// fatal.
func (c *Client) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		return c.connectOnce(ctx)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warnf("%s: connection failed, reconnecting attempt %d of %d in %s: %v",
			c.name, attempt, c.attempts, next, err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		c.logger.Errorf("%s: connection failed after %d attempts", c.name, attempt)
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, c.name, err)
	}
	c.logger.Infof("%s: connected", c.name)
	return nil
}

// connectOnce makes a single attempt. Concurrent callers that lose the race
// for the connecting state return immediately.
func (c *Client) connectOnce(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		if c.Connected() {
			return nil
		}
		return errConnecting
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}
	c.state.Store(int32(StateConnected))
	return nil
}

// ensure makes one connect attempt when the client is not connected.
func (c *Client) ensure(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	if err := c.connectOnce(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, c.name, err)
	}
	return nil
}

// fail records an operation error and marks the client disconnected so the
// next call reconnects. An error caused by the caller's own context ending
// says nothing about the server and leaves the state alone.
func (c *Client) fail(parent context.Context, op string, err error) {
	if parent.Err() != nil {
		c.logger.Debugf("%s: %s abandoned by caller: %v", c.name, op, err)
		return
	}
	c.state.Store(int32(StateDisconnected))
	c.logger.Errorf("%s: %s error: %v", c.name, op, err)
}

// Ping checks the server round trip.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Ping(opCtx).Err(); err != nil {
		c.fail(ctx, "ping", err)
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, c.name, err)
	}
	return nil
}

// Get returns the value stored at key. The boolean is false when the key is
// missing or the server could not be reached.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	if err := c.ensure(ctx); err != nil {
		return "", false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.rdb.Get(opCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.fail(ctx, "get", err)
		return "", false
	}
	return v, true
}

// Set stores value at key with ttl. It reports whether the write happened.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := c.ensure(ctx); err != nil {
		return false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Set(opCtx, key, value, ttl).Err(); err != nil {
		c.fail(ctx, "set", err)
		return false
	}
	return true
}

// Del removes key. It reports whether the command reached the server.
func (c *Client) Del(ctx context.Context, key string) bool {
	if err := c.ensure(ctx); err != nil {
		return false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Del(opCtx, key).Err(); err != nil {
		c.fail(ctx, "del", err)
		return false
	}
	return true
}

// Eval runs script atomically. It implements ratelimiter.Store.
//
// Errors wrap ErrUnavailable. A nil reply is returned as (nil, nil) and left
// to the caller to classify.
func (c *Client) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := script.Run(opCtx, c.rdb, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.fail(ctx, "eval", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.name, err)
	}
	return res, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	c.state.Store(int32(StateDisconnected))
	return c.rdb.Close()
}

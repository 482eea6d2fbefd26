package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowLua counts admissions in the window containing ARGV[3]. Each
// window gets its own counter key, "<key>:<windowStart>".
const fixedWindowLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local windowSize = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local windowStart = math.floor(now / windowSize) * windowSize
local windowKey = key .. ':' .. windowStart

local current = tonumber(redis.call('GET', windowKey) or '0')

local allowed = 0
local remaining = 0
if current + consume <= limit then
  redis.call('INCRBY', windowKey, consume)
  redis.call('PEXPIRE', windowKey, ttl)
  allowed = 1
  remaining = limit - current - consume
end

return cjson.encode({
  allowed = allowed,
  remaining = remaining,
  reset = windowStart + windowSize,
  limit = limit
})
`

var fixedWindowScript = redis.NewScript(fixedWindowLua)

// FixedWindowLimiter implements the "Fixed Window" rate-limiting algorithm.
//
// The Fixed Window algorithm limits the number of requests (limit) within
// aligned time frames (windowSize). It is simple and memory-efficient but may
// admit up to twice the limit across a window boundary.
//
// Example usage:
//
//	limiter, err := ratelimiter.NewFixedWindow(client, 100, time.Minute)
//	res := limiter.Check(ctx, "svc", "user:123", ratelimiter.Config{})
type FixedWindowLimiter struct {
	engine
	limit      int64
	windowSize time.Duration
}

// NewFixedWindow creates a new FixedWindowLimiter instance.
//
// Parameters:
//   - store: the atomic script executor holding the counters
//   - limit: maximum number of requests allowed per window
//   - windowSize: duration of each window, at least one millisecond
func NewFixedWindow(store Store, limit int64, windowSize time.Duration, opts ...Option) (*FixedWindowLimiter, error) {
	d := Defaults{Limit: limit, WindowSize: windowSize}
	if err := d.validate(AlgorithmFixedWindow); err != nil {
		return nil, err
	}
	e, err := newEngine(store, opts)
	if err != nil {
		return nil, err
	}
	return &FixedWindowLimiter{engine: e, limit: limit, windowSize: windowSize}, nil
}

// Algorithm implements Limiter.
func (l *FixedWindowLimiter) Algorithm() Algorithm { return AlgorithmFixedWindow }

// Check counts one request for clientID in the current window.
//
// The returned Result carries:
//
//   - Allowed: true if the request is within the limit
//   - Remaining: requests left in the current window
//   - Reset: the end of the current window
//   - Limit: the limit that applied
func (l *FixedWindowLimiter) Check(ctx context.Context, serviceID, clientID string, cfg Config) Result {
	limit, okLimit := intOr(cfg.Limit, l.limit)
	window, okWindow := windowOr(cfg.WindowSize, l.windowSize)
	if !okLimit || !okWindow {
		l.logger.Debugf("fixed window: ignoring invalid override for %s/%s", serviceID, clientID)
	}

	return l.run(ctx, invocation{
		algorithm: AlgorithmFixedWindow,
		script:    fixedWindowScript,
		key:       Key(AlgorithmFixedWindow, serviceID, clientID),
		limit:     limit,
		rate:      window.Milliseconds(),
		consume:   1,
		now:       l.clock(),
		fallback:  window,
	})
}

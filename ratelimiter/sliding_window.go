package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowLua keeps one sorted-set member per admission, scored by its
// admission time, and trims members older than the window.
const slidingWindowLua = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local windowSize = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - windowSize)

local current = redis.call('ZCARD', key)

local allowed = 0
local remaining = 0
local reset = now + windowSize
if current + consume <= limit then
  for i = 1, consume do
    redis.call('ZADD', key, now, ARGV[3] .. ':' .. (current + i))
  end
  redis.call('PEXPIRE', key, ttl)
  allowed = 1
  remaining = limit - current - consume
else
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if #oldest > 0 then
    reset = tonumber(oldest[2]) + windowSize
  end
end

return cjson.encode({
  allowed = allowed,
  remaining = remaining,
  reset = reset,
  limit = limit
})
`

var slidingWindowScript = redis.NewScript(slidingWindowLua)

// SlidingWindowLimiter implements the "Sliding Window Log" algorithm.
//
// It admits at most 'limit' requests in any trailing interval of 'windowSize',
// avoiding the boundary bursts of the fixed window at the cost of one stored
// entry per admitted request.
type SlidingWindowLimiter struct {
	engine
	limit      int64
	windowSize time.Duration
}

// NewSlidingWindow creates a new SlidingWindowLimiter instance.
func NewSlidingWindow(store Store, limit int64, windowSize time.Duration, opts ...Option) (*SlidingWindowLimiter, error) {
	d := Defaults{Limit: limit, WindowSize: windowSize}
	if err := d.validate(AlgorithmSlidingWindow); err != nil {
		return nil, err
	}
	e, err := newEngine(store, opts)
	if err != nil {
		return nil, err
	}
	return &SlidingWindowLimiter{engine: e, limit: limit, windowSize: windowSize}, nil
}

// Algorithm implements Limiter.
func (l *SlidingWindowLimiter) Algorithm() Algorithm { return AlgorithmSlidingWindow }

// Check records one request for clientID if fewer than the limit were admitted
// in the trailing window. On denial Reset is when the oldest admission ages out.
func (l *SlidingWindowLimiter) Check(ctx context.Context, serviceID, clientID string, cfg Config) Result {
	limit, okLimit := intOr(cfg.Limit, l.limit)
	window, okWindow := windowOr(cfg.WindowSize, l.windowSize)
	if !okLimit || !okWindow {
		l.logger.Debugf("sliding window: ignoring invalid override for %s/%s", serviceID, clientID)
	}

	return l.run(ctx, invocation{
		algorithm: AlgorithmSlidingWindow,
		script:    slidingWindowScript,
		key:       Key(AlgorithmSlidingWindow, serviceID, clientID),
		limit:     limit,
		rate:      window.Milliseconds(),
		consume:   1,
		now:       l.clock(),
		fallback:  window,
	})
}

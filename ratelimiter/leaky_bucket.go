package ratelimiter

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// leakyBucketLua drains the bucket for the elapsed time, then adds ARGV[4]
// units if they fit. State is {"level","lastLeak"} JSON.
const leakyBucketLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local leakRate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local level = 0
local lastLeak = now
local data = redis.call('GET', key)
if data then
  local state = cjson.decode(data)
  level = tonumber(state.level) or 0
  lastLeak = tonumber(state.lastLeak) or now
end

local elapsed = math.max(0, now - lastLeak) / 1000
level = math.max(0, level - elapsed * leakRate)

local allowed = 0
local remaining = 0
if level + consume <= capacity then
  level = level + consume
  allowed = 1
  remaining = capacity - level
end

local reset
if leakRate > 0 and level > 0 then
  reset = now + math.ceil(level / leakRate * 1000)
else
  reset = now + math.floor(ttl / 2)
end

redis.call('SET', key, cjson.encode({level = level, lastLeak = now}), 'PX', ttl)

return cjson.encode({
  allowed = allowed,
  remaining = math.floor(remaining),
  reset = reset,
  limit = capacity
})
`

var leakyBucketScript = redis.NewScript(leakyBucketLua)

// LeakyBucketLimiter implements the "Leaky Bucket" rate-limiting algorithm.
//
// Each request adds one unit to the bucket and the bucket drains at
// 'leakRate' units per second. A request that would overflow 'capacity' is
// rejected. Unlike the token bucket it smooths traffic to the leak rate.
type LeakyBucketLimiter struct {
	engine
	capacity int64
	leakRate float64
}

// NewLeakyBucket creates a new LeakyBucketLimiter instance.
//
// It returns a *ConfigurationError when capacity is not positive or leakRate
// is negative.
func NewLeakyBucket(store Store, capacity int64, leakRate float64, opts ...Option) (*LeakyBucketLimiter, error) {
	d := Defaults{Capacity: capacity, LeakRate: leakRate}
	if err := d.validate(AlgorithmLeakyBucket); err != nil {
		return nil, err
	}
	e, err := newEngine(store, opts)
	if err != nil {
		return nil, err
	}
	return &LeakyBucketLimiter{engine: e, capacity: capacity, leakRate: leakRate}, nil
}

// Algorithm implements Limiter.
func (l *LeakyBucketLimiter) Algorithm() Algorithm { return AlgorithmLeakyBucket }

// Check adds one unit for clientID. cfg.Capacity and cfg.LeakRate override the
// defaults for this call only. Remaining is zero on denial.
func (l *LeakyBucketLimiter) Check(ctx context.Context, serviceID, clientID string, cfg Config) Result {
	capacity, okCap := intOr(cfg.Capacity, l.capacity)
	rate, okRate := rateOr(cfg.LeakRate, l.leakRate)
	if !okCap || !okRate {
		l.logger.Debugf("leaky bucket: ignoring invalid override for %s/%s", serviceID, clientID)
	}

	return l.run(ctx, invocation{
		algorithm: AlgorithmLeakyBucket,
		script:    leakyBucketScript,
		key:       Key(AlgorithmLeakyBucket, serviceID, clientID),
		limit:     capacity,
		rate:      rate,
		consume:   1,
		now:       l.clock(),
		fallback:  bucketFallback,
	})
}

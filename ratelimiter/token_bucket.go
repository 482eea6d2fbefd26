package ratelimiter

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// tokenBucketLua refills the bucket for the elapsed time, then takes ARGV[4]
// tokens if they are available. State is {"tokens","lastRefill"} JSON.
const tokenBucketLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local lastRefill = now
local data = redis.call('GET', key)
if data then
  local state = cjson.decode(data)
  tokens = tonumber(state.tokens) or capacity
  lastRefill = tonumber(state.lastRefill) or now
end

local elapsed = math.max(0, now - lastRefill) / 1000
tokens = math.min(capacity, tokens + elapsed * refillRate)

local allowed = 0
if tokens >= consume then
  tokens = tokens - consume
  allowed = 1
end

local reset
if refillRate > 0 then
  reset = lastRefill + math.ceil((capacity - tokens) / refillRate * 1000)
else
  reset = now + math.floor(ttl / 2)
end

redis.call('SET', key, cjson.encode({tokens = tokens, lastRefill = now}), 'PX', ttl)

return cjson.encode({
  allowed = allowed,
  remaining = math.floor(tokens),
  reset = reset,
  limit = capacity
})
`

var tokenBucketScript = redis.NewScript(tokenBucketLua)

// TokenBucketLimiter implements the "Token Bucket" rate-limiting algorithm.
//
// The bucket holds up to 'capacity' tokens and regains 'refillRate' tokens per
// second. A request takes one token; a burst of up to 'capacity' requests is
// admitted at once and the steady state is 'refillRate' requests per second.
// A refill rate of zero is valid and means the bucket never refills.
//
// Example usage:
//
//	client, _ := store.NewClientFromURL("redis://localhost:6379")
//	limiter, err := ratelimiter.NewTokenBucket(client, 5, 1) // burst of 5, 1 token/sec
//	res := limiter.Check(ctx, "svc", "user:123", ratelimiter.Config{})
//	if res.Allowed {
//	    // process request
//	} else {
//	    // reject request
//	}
type TokenBucketLimiter struct {
	engine
	capacity   int64   // Maximum number of tokens in the bucket
	refillRate float64 // Tokens generated per second
}

// NewTokenBucket creates a new TokenBucketLimiter instance.
//
// Parameters:
//   - store: the atomic script executor holding bucket state
//   - capacity: maximum number of tokens in the bucket, must be positive
//   - refillRate: tokens added per second, must not be negative
//
// It returns a *ConfigurationError when a parameter is invalid.
func NewTokenBucket(store Store, capacity int64, refillRate float64, opts ...Option) (*TokenBucketLimiter, error) {
	d := Defaults{Capacity: capacity, RefillRate: refillRate}
	if err := d.validate(AlgorithmTokenBucket); err != nil {
		return nil, err
	}
	e, err := newEngine(store, opts)
	if err != nil {
		return nil, err
	}
	return &TokenBucketLimiter{engine: e, capacity: capacity, refillRate: refillRate}, nil
}

// Algorithm implements Limiter.
func (l *TokenBucketLimiter) Algorithm() Algorithm { return AlgorithmTokenBucket }

// Check takes one token for clientID. cfg.Capacity and cfg.RefillRate override
// the defaults for this call only.
//
// The returned Result carries:
//
//   - Allowed: true if a token was taken
//   - Remaining: whole tokens left after the call
//   - Reset: when the bucket is expected to be full again
//   - Limit: the capacity that applied
func (l *TokenBucketLimiter) Check(ctx context.Context, serviceID, clientID string, cfg Config) Result {
	capacity, okCap := intOr(cfg.Capacity, l.capacity)
	rate, okRate := rateOr(cfg.RefillRate, l.refillRate)
	if !okCap || !okRate {
		l.logger.Debugf("token bucket: ignoring invalid override for %s/%s", serviceID, clientID)
	}

	return l.run(ctx, invocation{
		algorithm: AlgorithmTokenBucket,
		script:    tokenBucketScript,
		key:       Key(AlgorithmTokenBucket, serviceID, clientID),
		limit:     capacity,
		rate:      rate,
		consume:   1,
		now:       l.clock(),
		fallback:  bucketFallback,
	})
}

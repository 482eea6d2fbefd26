package ratelimiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_FiveThenRefillAfterThreeSeconds(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 5, 1, ratelimiter.WithClock(clock.Now)))(t)

	res := checkN(t, l, 6)
	for i, want := range []int64{4, 3, 2, 1, 0} {
		assert.True(t, res[i].Allowed)
		assert.Equal(t, want, res[i].Remaining)
	}
	assert.False(t, res[5].Allowed)
	assert.Equal(t, int64(0), res[5].Remaining)

	clock.Advance(3 * time.Second)
	next := checkN(t, l, 1)[0]
	assert.True(t, next.Allowed)
	assert.Equal(t, int64(2), next.Remaining)
}

func TestTokenBucket_DrainsThenDenies(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 3, 0, ratelimiter.WithClock(clock.Now)))(t)

	res := checkN(t, l, 4)

	for i, want := range []int64{2, 1, 0} {
		assert.True(t, res[i].Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, want, res[i].Remaining)
		assert.Equal(t, int64(3), res[i].Limit)
	}
	assert.False(t, res[3].Allowed)
	assert.Equal(t, int64(0), res[3].Remaining)
}

func TestTokenBucket_Refills(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 2, 1, ratelimiter.WithClock(clock.Now)))(t)

	res := checkN(t, l, 3)
	require.False(t, res[2].Allowed)

	clock.Advance(time.Second)
	res = checkN(t, l, 2)
	assert.True(t, res[0].Allowed)
	assert.Equal(t, int64(0), res[0].Remaining)
	assert.False(t, res[1].Allowed)
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 5, 100, ratelimiter.WithClock(clock.Now)))(t)

	checkN(t, l, 1)
	clock.Advance(time.Hour / 2)

	res := checkN(t, l, 1)[0]
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(4), res.Remaining)
}

// Reset is measured from the refill timestamp stored before the call.
func TestTokenBucket_ResetFromPreviousRefill(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 10, 1, ratelimiter.WithClock(clock.Now)))(t)

	res := checkN(t, l, 1)[0]
	assert.Equal(t, t0.Add(time.Second), res.Reset)
	assert.Equal(t, t0.Add(time.Second).UnixMilli(), res.ResetMillis())

	clock.Advance(500 * time.Millisecond)
	res = checkN(t, l, 1)[0]
	// 9.5 tokens before the call, 8.5 after; lastRefill was t0.
	assert.Equal(t, int64(8), res.Remaining)
	assert.Equal(t, t0.Add(1500*time.Millisecond), res.Reset)
}

func TestTokenBucket_ZeroRefillResetsAtHalfTTL(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 1, 0, ratelimiter.WithClock(clock.Now)))(t)

	res := checkN(t, l, 1)[0]
	assert.Equal(t, t0.Add(30*time.Minute), res.Reset)
}

func TestTokenBucket_LaggingClockDoesNotDrain(t *testing.T) {
	_, client := setupMiniredis(t)
	clock := newClock()
	l := must(ratelimiter.NewTokenBucket(client, 2, 1, ratelimiter.WithClock(clock.Now)))(t)

	checkN(t, l, 1)
	clock.Advance(-10 * time.Second)

	res := checkN(t, l, 1)[0]
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
}

func TestTokenBucket_KeyAndTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := must(ratelimiter.NewTokenBucket(client, 5, 1))(t)

	l.Check(context.Background(), "billing", "user-7", ratelimiter.Config{})

	key := "rate_limit:token_bucket:billing:user-7"
	assert.Equal(t, key, ratelimiter.Key(ratelimiter.AlgorithmTokenBucket, "billing", "user-7"))
	require.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestTokenBucket_RecordTTLOption(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := must(ratelimiter.NewTokenBucket(client, 5, 1, ratelimiter.WithRecordTTL(10*time.Minute)))(t)

	l.Check(context.Background(), "svc", "client", ratelimiter.Config{})

	assert.Equal(t, 10*time.Minute, mr.TTL("rate_limit:token_bucket:svc:client"))
}

func TestTokenBucket_Overrides(t *testing.T) {
	_, client := setupMiniredis(t)
	l := must(ratelimiter.NewTokenBucket(client, 100, 10))(t)
	ctx := context.Background()

	res := l.Check(ctx, "svc", "a", ratelimiter.NewConfig(ratelimiter.WithCapacity(1), ratelimiter.WithRefillRate(0)))
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Limit)
	assert.Equal(t, int64(0), res.Remaining)

	res = l.Check(ctx, "svc", "b", ratelimiter.NewConfig(ratelimiter.WithCapacity(-5)))
	assert.Equal(t, int64(100), res.Limit, "invalid override falls back to the default")
}

func TestTokenBucket_TenantsAreIsolated(t *testing.T) {
	_, client := setupMiniredis(t)
	l := must(ratelimiter.NewTokenBucket(client, 1, 0))(t)
	ctx := context.Background()

	assert.True(t, l.Check(ctx, "svc-a", "user", ratelimiter.Config{}).Allowed)
	assert.False(t, l.Check(ctx, "svc-a", "user", ratelimiter.Config{}).Allowed)
	assert.True(t, l.Check(ctx, "svc-b", "user", ratelimiter.Config{}).Allowed)
}

func TestTokenBucket_ConcurrentChecksAdmitExactlyCapacity(t *testing.T) {
	_, client := setupMiniredis(t)
	l := must(ratelimiter.NewTokenBucket(client, 50, 0))(t)

	assert.Equal(t, int64(50), admitConcurrently(t, l, 100))
}

func TestNewTokenBucket_RejectsInvalidParameters(t *testing.T) {
	_, client := setupMiniredis(t)
	var cfgErr *ratelimiter.ConfigurationError

	_, err := ratelimiter.NewTokenBucket(client, 0, 1)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "capacity", cfgErr.Field)

	_, err = ratelimiter.NewTokenBucket(client, 10, -1)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "refillRate", cfgErr.Field)

	_, err = ratelimiter.NewTokenBucket(nil, 10, 1)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "store", cfgErr.Field)
}

package limitly_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emmanueltaiwo/limitly"
	"github.com/emmanueltaiwo/limitly/middleware"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ middleware.Checker = (*limitly.Client)(nil)

func newClient(t *testing.T, opts ...limitly.Option) (*limitly.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := limitly.New(context.Background(),
		append([]limitly.Option{limitly.WithRedisURL("redis://" + mr.Addr())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestClient_Check(t *testing.T) {
	client, mr := newClient(t,
		limitly.WithAlgorithm(ratelimiter.AlgorithmFixedWindow),
		limitly.WithDefaults(ratelimiter.Defaults{Limit: 2, WindowSize: time.Hour}),
	)
	ctx := context.Background()

	assert.True(t, client.Connected())
	assert.Equal(t, ratelimiter.AlgorithmFixedWindow, client.Algorithm())
	assert.True(t, client.Allow(ctx, "", "user-1"))
	assert.True(t, client.Allow(ctx, "", "user-1"))
	res := client.Check(ctx, "", "user-1")
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(2), res.Limit)

	var found bool
	for _, k := range mr.Keys() {
		found = found || strings.HasPrefix(k, "rate_limit:fixed_window:default:user-1:")
	}
	assert.True(t, found, "empty service id uses the default service")
}

func TestClient_ServiceIDAndOverrides(t *testing.T) {
	client, mr := newClient(t, limitly.WithServiceID("billing"))
	ctx := context.Background()

	res := client.Check(ctx, "", "user-1", ratelimiter.WithCapacity(3))

	assert.True(t, res.Allowed)
	assert.Equal(t, int64(3), res.Limit)
	assert.Equal(t, int64(2), res.Remaining)
	assert.True(t, mr.Exists("rate_limit:token_bucket:billing:user-1"))
}

func TestClient_FailsOpenWhenStoreGoesAway(t *testing.T) {
	client, mr := newClient(t)
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))

	mr.Close()

	res := client.Check(ctx, "svc", "user-1")
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(99), res.Remaining)
	assert.Error(t, client.Ping(ctx))
}

func TestClient_CheckRegistryInMemory(t *testing.T) {
	client, mr := newClient(t)
	ctx := context.Background()

	assert.Equal(t, registry.Status{Valid: true, Registered: true}, client.CheckRegistry(ctx, "svc", "p1", ""))
	assert.True(t, client.CheckRegistry(ctx, "svc", "p2", "").Collision)
	assert.False(t, mr.Exists(registry.Key("svc")), "registry stays out of the counter store")
	assert.NotNil(t, client.Registry())
}

func TestClient_RegistryURL(t *testing.T) {
	regRedis := miniredis.RunT(t)
	client, mr := newClient(t, limitly.WithRegistryURL("redis://"+regRedis.Addr()))

	client.CheckRegistry(context.Background(), "", "p1", "")

	assert.True(t, regRedis.Exists(registry.Key("default")))
	assert.False(t, mr.Exists(registry.Key("default")))
}

func TestClient_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := limitly.New(context.Background(), limitly.WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.Allow(context.Background(), "svc", "c"))
	assert.True(t, mr.Exists("rate_limit:token_bucket:svc:c"))
}

func TestNew_UnreachableStore(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := limitly.New(context.Background(),
		limitly.WithRedisURL("redis://"+addr),
		limitly.WithConnectAttempts(2),
		limitly.WithRetryDelay(0),
	)

	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestNew_LazyConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := limitly.New(context.Background(), limitly.WithRedisURL("redis://"+addr), limitly.WithLazyConnect())
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.Connected())
	assert.True(t, client.Allow(context.Background(), "svc", "c"), "an unreachable store fails open")
}

func TestNew_InvalidConfiguration(t *testing.T) {
	_, err := limitly.New(context.Background(), limitly.WithAlgorithm("gcra"), limitly.WithLazyConnect())
	var cfgErr *ratelimiter.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "algorithm", cfgErr.Field)

	_, err = limitly.New(context.Background(),
		limitly.WithDefaults(ratelimiter.Defaults{Capacity: 0, RefillRate: 1}), limitly.WithLazyConnect())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "capacity", cfgErr.Field)

	_, err = limitly.New(context.Background(), limitly.WithRedisURL("http://nope"))
	assert.Error(t, err)
}

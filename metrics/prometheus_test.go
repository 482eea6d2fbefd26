package metrics_test

import (
	"context"
	"testing"

	"github.com/emmanueltaiwo/limitly/metrics"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downStore struct{}

func (downStore) Eval(context.Context, *redis.Script, []string, ...interface{}) (interface{}, error) {
	return nil, store.ErrUnavailable
}

func TestRecorder_CountsChecks(t *testing.T) {
	rec := metrics.New(prometheus.NewRegistry())
	rl, err := ratelimiter.New(downStore{}, ratelimiter.AlgorithmLeakyBucket, ratelimiter.StandardDefaults,
		ratelimiter.WithRecorder(rec))
	require.NoError(t, err)

	rl.Check(context.Background(), "svc", "client")
	rl.Check(context.Background(), "svc", "client")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.ChecksTotal.WithLabelValues("leaky-bucket", ratelimiter.OutcomeFailOpen)))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.CheckDuration))
}

func TestRecorder_CountsRegistryEvents(t *testing.T) {
	rec := metrics.New(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := registry.New(store.NewMemory(ctx, 0), registry.WithRecorder(rec))

	reg.Check(ctx, "svc", "", "10.0.0.1")
	reg.Check(ctx, "svc", "p1", "10.0.0.1")
	reg.Check(ctx, "svc", "p2", "10.0.0.2")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.RegistryEventsTotal.WithLabelValues(registry.EventAnonymous)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.RegistryEventsTotal.WithLabelValues(registry.EventRegistered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.RegistryEventsTotal.WithLabelValues(registry.EventMismatch)))
}

func TestRecorder_IgnoresUnknownNames(t *testing.T) {
	rec := metrics.New(prometheus.NewRegistry())

	rec.Add("something.else", 1, nil)
	rec.Observe("something.else", 1, nil)

	assert.Equal(t, 0, testutil.CollectAndCount(rec.ChecksTotal))
}

package ratelimiter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// t0 is aligned to a minute so fixed windows start exactly here.
var t0 = time.UnixMilli(1_700_000_040_000)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// setupMiniredis starts a miniredis server and returns a connected store
// client bound to it. Checks racing a lazy first connect fail open, so the
// client is connected up front.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := store.NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Connect(context.Background()))
	return mr, client
}

// replyStore answers every Eval with a canned reply.
type replyStore struct {
	reply interface{}
	err   error
}

func (s replyStore) Eval(context.Context, *redis.Script, []string, ...interface{}) (interface{}, error) {
	return s.reply, s.err
}

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// outcomeRecorder keeps the outcome tag of every check.
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	latency  int
}

func (r *outcomeRecorder) Add(name string, _ float64, tags map[string]string) {
	if name != ratelimiter.MetricCheck {
		return
	}
	r.mu.Lock()
	r.outcomes = append(r.outcomes, tags["outcome"])
	r.mu.Unlock()
}

func (r *outcomeRecorder) Observe(name string, _ float64, _ map[string]string) {
	if name == ratelimiter.MetricLatency {
		r.mu.Lock()
		r.latency++
		r.mu.Unlock()
	}
}

func checkN(t *testing.T, l ratelimiter.Limiter, n int) []ratelimiter.Result {
	t.Helper()
	out := make([]ratelimiter.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.Check(context.Background(), "svc", "client", ratelimiter.Config{}))
	}
	return out
}

// must wraps a constructor call: must(ratelimiter.NewFixedWindow(...))(t).
func must[T any](v T, err error) func(*testing.T) T {
	return func(t *testing.T) T {
		t.Helper()
		require.NoError(t, err)
		return v
	}
}

// admitConcurrently runs n checks for one caller in parallel and returns how
// many were admitted.
func admitConcurrently(t *testing.T, l ratelimiter.Limiter, n int) int64 {
	t.Helper()
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "svc", "hot", ratelimiter.Config{}).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	return allowed.Load()
}

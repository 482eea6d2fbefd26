package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emmanueltaiwo/limitly/internal/server"
	"github.com/emmanueltaiwo/limitly/metrics"
	"github.com/emmanueltaiwo/limitly/middleware"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type allowAll struct{}

func (allowAll) Check(context.Context, string, string, ...ratelimiter.CheckOption) ratelimiter.Result {
	return ratelimiter.Result{Allowed: true, Limit: 1, Remaining: 1, Reset: time.UnixMilli(1_700_000_000_000)}
}

type registrar struct{}

func (registrar) Check(context.Context, string, string, string) registry.Status {
	return registry.Status{Valid: true}
}

type fixture struct {
	srv     *server.Server
	mr      *miniredis.Miniredis
	kv      *store.Memory
	metrics *metrics.Recorder
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, algorithm ratelimiter.Algorithm, defaults ratelimiter.Defaults) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := store.NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), store.WithRetryDelay(0))
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	rl, err := ratelimiter.New(client, algorithm, defaults, ratelimiter.WithRecorder(rec))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	kv := store.NewMemory(ctx, 0)

	srv := server.New(server.Deps{
		Limiter:  rl,
		Registry: registry.New(kv, registry.WithRecorder(rec)),
		Store:    client,
		Gatherer: reg,
		Metrics:  rec,
	})
	return &fixture{srv: srv, mr: mr, kv: kv, metrics: rec, reg: reg}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","redis":"connected"}`, w.Body.String())

	f.mr.Close()
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Redis connection failed"}`, w.Body.String())
}

func TestRateLimitRoute(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmTokenBucket, ratelimiter.Defaults{Capacity: 2, RefillRate: 0.001})

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/rate-limit", nil)
		req.Header.Set(middleware.HeaderServiceID, "billing")
		req.Header.Set(middleware.HeaderClientID, "user-1")
		req.Header.Set(middleware.HeaderServicePassword, "secret")
		return req
	}

	w := f.do(newReq())
	require.Equal(t, http.StatusOK, w.Code)
	var body server.RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Allowed", body.Message)
	assert.Equal(t, int64(2), body.Limit)
	assert.Equal(t, int64(1), body.Remaining)
	assert.NotZero(t, body.Reset)
	assert.Equal(t, "2", w.Header().Get(middleware.HeaderLimit))
	assert.NotEmpty(t, w.Header().Get(server.HeaderRequestID))

	assert.Equal(t, http.StatusOK, f.do(newReq()).Code)
	w = f.do(newReq())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRetryAfter))

	_, registered := f.kv.Get(context.Background(), registry.Key("billing"))
	assert.True(t, registered)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistryEventsTotal.WithLabelValues(registry.EventRegistered)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("token-bucket", ratelimiter.OutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("token-bucket", ratelimiter.OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("/api/rate-limit", "429")))
}

func TestRateLimitRoute_HeaderOverrides(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults)

	req := httptest.NewRequest(http.MethodGet, "/api/rate-limit", nil)
	req.Header.Set(middleware.HeaderCapacity, "7")
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Header().Get(middleware.HeaderLimit))
	assert.Equal(t, "6", w.Header().Get(middleware.HeaderRemaining))
}

func TestRateLimitRoute_StoreDownFailsOpen(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmFixedWindow, ratelimiter.StandardDefaults)
	f.mr.Close()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/rate-limit", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "99", w.Header().Get(middleware.HeaderRemaining))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(server.HeaderRequestID, "req-42")

	assert.Equal(t, "req-42", f.do(req).Header().Get(server.HeaderRequestID))
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults)
	f.do(httptest.NewRequest(http.MethodGet, "/api/rate-limit", nil))

	w := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "limitly_checks_total")
	assert.Contains(t, w.Body.String(), "limitly_http_requests_total")
}

func TestServe_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := server.New(server.Deps{Limiter: allowAll{}, Registry: registrar{}, Store: pinger{}})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/rate-limit", ln.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	client.CloseIdleConnections()
}

func TestServe_ListenerError(t *testing.T) {
	srv := server.New(server.Deps{Limiter: allowAll{}, Registry: registrar{}, Store: pinger{errors.New("down")}})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = srv.Serve(context.Background(), ln)
	assert.Error(t, err)
}

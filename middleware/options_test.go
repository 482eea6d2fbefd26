package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.UnixMilli(1_700_000_000_000)

func TestDefaultIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"

	id, err := DefaultIdentity(r)
	require.NoError(t, err)
	assert.Equal(t, Identity{ServiceID: "default", ClientID: "10.1.2.3"}, id)

	r.Header.Set(HeaderServiceID, "billing")
	r.Header.Set(HeaderClientID, "user-1")
	id, _ = DefaultIdentity(r)
	assert.Equal(t, Identity{ServiceID: "billing", ClientID: "user-1"}, id)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = ""
	id, _ = DefaultIdentity(r)
	assert.Equal(t, "unknown", id.ClientID)
}

func TestHeaderOverrides(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, HeaderOverrides(r))

	r.Header.Set(HeaderCapacity, "20")
	r.Header.Set(HeaderRefillRate, "2.5")
	cfg := ratelimiter.NewConfig(HeaderOverrides(r)...)
	require.NotNil(t, cfg.Capacity)
	require.NotNil(t, cfg.RefillRate)
	assert.Equal(t, int64(20), *cfg.Capacity)
	assert.Equal(t, 2.5, *cfg.RefillRate)

	r.Header.Set(HeaderCapacity, "lots")
	cfg = ratelimiter.NewConfig(HeaderOverrides(r)...)
	assert.Nil(t, cfg.Capacity)
}

func TestSetHeaders(t *testing.T) {
	h := http.Header{}
	SetHeaders(h, ratelimiter.Result{Limit: 100, Remaining: 42, Reset: now.Add(1500 * time.Millisecond)})

	assert.Equal(t, "100", h.Get(HeaderLimit))
	assert.Equal(t, "42", h.Get(HeaderRemaining))
	assert.Equal(t, "1700000002", h.Get(HeaderReset), "reset seconds round up")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(2), RetryAfterSeconds(ratelimiter.Result{Reset: now.Add(1100 * time.Millisecond)}, now))
	assert.Equal(t, int64(1), RetryAfterSeconds(ratelimiter.Result{Reset: now.Add(-time.Minute)}, now))
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	res := ratelimiter.Result{Limit: 5, Remaining: 3, Reset: now.Add(30 * time.Second)}

	WriteTooManyRequests(w, res, now)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get(HeaderRetryAfter))
	var body TooManyRequestsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, TooManyRequestsBody{
		Message:   "Too many requests",
		Limit:     5,
		Remaining: 0,
		Reset:     now.Add(30 * time.Second).UnixMilli(),
	}, body)
}

package ratelimiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketFallback is the reset distance reported by the bucket algorithms when
// the store gave no usable reset.
const bucketFallback = time.Minute

// Key returns the store key a limiter uses for clientID within serviceID,
// e.g. "rate_limit:token_bucket:svc:user-1".
func Key(a Algorithm, serviceID, clientID string) string {
	return "rate_limit:" + a.slug() + ":" + serviceID + ":" + clientID
}

// invocation is one prepared script run.
type invocation struct {
	algorithm Algorithm
	script    *redis.Script
	key       string
	limit     int64       // ARGV[1], capacity or request ceiling
	rate      interface{} // ARGV[2], refill or leak rate, or window in ms
	consume   int64       // ARGV[4]
	now       time.Time   // ARGV[3]
	fallback  time.Duration
}

// scriptReply is the JSON object every script returns.
type scriptReply struct {
	Allowed   interface{} `json:"allowed"`
	Remaining float64     `json:"remaining"`
	Reset     float64     `json:"reset"`
	Limit     float64     `json:"limit"`
}

// engine runs scripts and applies the failure policy. Every limiter embeds one.
type engine struct {
	store Store
	options
}

func newEngine(store Store, opts []Option) (engine, error) {
	if store == nil {
		return engine{}, &ConfigurationError{Field: "store", Reason: "must not be nil"}
	}
	return engine{store: store, options: newOptions(opts...)}, nil
}

// run executes inv and always returns a fully populated Result.
func (e *engine) run(ctx context.Context, inv invocation) Result {
	start := time.Now()
	reply, err := e.evaluate(ctx, inv)
	e.recorder.Observe(MetricLatency, time.Since(start).Seconds(), map[string]string{
		"algorithm": inv.algorithm.String(),
	})

	res, outcome := e.settle(inv, reply, err)
	e.recorder.Add(MetricCheck, 1, map[string]string{
		"algorithm": inv.algorithm.String(),
		"outcome":   outcome,
	})
	return res
}

// evaluate performs the round trip and classifies what came back.
func (e *engine) evaluate(ctx context.Context, inv invocation) (scriptReply, error) {
	raw, err := e.store.Eval(ctx, inv.script, []string{inv.key},
		inv.limit, inv.rate, inv.now.UnixMilli(), inv.consume, e.recordTTL.Milliseconds())
	if err != nil {
		return scriptReply{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return decodeReply(raw)
}

func decodeReply(raw interface{}) (scriptReply, error) {
	s, ok := raw.(string)
	if !ok {
		return scriptReply{}, fmt.Errorf("%w: unexpected reply type %T", ErrMalformedResponse, raw)
	}
	var reply *scriptReply
	if err := json.Unmarshal([]byte(s), &reply); err != nil {
		return scriptReply{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if reply == nil {
		return scriptReply{}, fmt.Errorf("%w: null reply", ErrMalformedResponse)
	}
	return *reply, nil
}

// settle turns the outcome of evaluate into a Result and an outcome tag.
func (e *engine) settle(inv invocation, reply scriptReply, err error) (Result, string) {
	switch {
	case err == nil:
		res := reply.result(inv)
		if res.Allowed {
			return res, OutcomeAllowed
		}
		return res, OutcomeDenied
	case errors.Is(err, ErrMalformedResponse):
		e.logger.Warnf("%s: failing closed for %s: %v", inv.algorithm, inv.key, err)
		return Result{
			Allowed:   false,
			Remaining: 0,
			Reset:     inv.now.Add(inv.fallback),
			Limit:     inv.limit,
		}, OutcomeFailClosed
	default:
		e.logger.Errorf("%s: failing open for %s: %v", inv.algorithm, inv.key, err)
		return Result{
			Allowed:   true,
			Remaining: clamp(inv.limit-1, inv.limit),
			Reset:     inv.now.Add(inv.fallback),
			Limit:     inv.limit,
		}, OutcomeFailOpen
	}
}

// result maps a decoded reply onto a Result, filling gaps from inv.
func (r scriptReply) result(inv invocation) Result {
	limit := inv.limit
	if n := int64(r.Limit); n > 0 {
		limit = n
	}
	reset := inv.now.Add(inv.fallback)
	if r.Reset > 0 {
		reset = time.UnixMilli(int64(math.Ceil(r.Reset)))
	}
	remaining := int64(0)
	if !math.IsNaN(r.Remaining) {
		remaining = int64(math.Floor(r.Remaining))
	}
	return Result{
		Allowed:   allowedValue(r.Allowed),
		Remaining: clamp(remaining, limit),
		Reset:     reset,
		Limit:     limit,
	}
}

// allowedValue accepts both the boolean and the numeric form.
func allowedValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	}
	return false
}

func clamp(n, limit int64) int64 {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

// Package registry detects two unrelated callers sharing one service id.
//
// Service ids are free text chosen by callers, and a Redis store may be shared
// by unrelated deployments. A caller that sends a password registers its
// service id on first use; later callers presenting a different password are
// reported as a collision. The registry is advisory only: Check never rejects
// a request.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
)

// EntryTTL is how long a registration lives without being seen.
const EntryTTL = 30 * 24 * time.Hour

// MetricEvent counts registry outcomes, tagged with "event".
const MetricEvent = "registry.event"

// Events reported in the "event" tag of MetricEvent.
const (
	EventRegistered  = "registered"
	EventValidated   = "validated"
	EventMismatch    = "mismatch"
	EventAnonymous   = "anonymous"
	EventDecodeError = "decode_error"
)

// KV is the storage the registry needs. store.Client and store.Memory both
// satisfy it. Failures surface as a miss or an unperformed write.
type KV interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
}

// Recorder receives one count per registry event.
type Recorder interface {
	Add(name string, value float64, tags map[string]string)
}

// Status is the outcome of a registry check. Valid is always true.
type Status struct {
	Valid      bool `json:"valid"`
	Registered bool `json:"registered"`
	Collision  bool `json:"collision,omitempty"`
}

// Entry is the stored registration. Timestamps are Unix milliseconds.
type Entry struct {
	PasswordHash string `json:"password_hash"`
	RegisteredAt int64  `json:"registered_at"`
	LastSeen     int64  `json:"last_seen"`
}

// Key returns the store key of serviceID's registration.
func Key(serviceID string) string {
	return "service_registry:" + serviceID
}

// Registry checks service ids against their registered password.
type Registry struct {
	kv       KV
	hasher   Hasher
	logger   ratelimiter.Logger
	recorder Recorder
	clock    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithHasher sets the hasher used for new registrations.
func WithHasher(h Hasher) Option {
	return func(r *Registry) {
		if h != nil {
			r.hasher = h
		}
	}
}

// WithLogger sets the logger for collisions and anonymous use.
func WithLogger(l ratelimiter.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets where registry events are counted.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.clock = now
		}
	}
}

// New creates a Registry on kv.
func New(kv KV, opts ...Option) *Registry {
	r := &Registry{
		kv:       kv,
		hasher:   SHA256Hasher{},
		logger:   ratelimiter.NopLogger(),
		recorder: ratelimiter.NopRecorder(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check registers or validates serviceID. An empty password skips the
// registry. clientIP is only used in log lines.
//
// The registration write is not atomic; two first registrations racing on the
// same id both succeed and the last write wins.
func (r *Registry) Check(ctx context.Context, serviceID, password, clientIP string) Status {
	if password == "" {
		r.logger.Warnf("service id %q used without password (ip %s); rate limits may collide with other users. "+
			"Set a service password or use a dedicated store for isolation", serviceID, clientIP)
		r.event(EventAnonymous)
		return Status{Valid: true, Registered: false}
	}

	key := Key(serviceID)
	now := r.clock().UnixMilli()

	raw, found := r.kv.Get(ctx, key)
	if !found {
		hash, err := r.hasher.Hash(password)
		if err != nil {
			r.logger.Errorf("registry: hashing password for %q: %v", serviceID, err)
			r.event(EventDecodeError)
			return Status{Valid: true, Registered: false}
		}
		r.save(ctx, key, Entry{PasswordHash: hash, RegisteredAt: now, LastSeen: now})
		r.logger.Infof("registry: service id %q registered (ip %s)", serviceID, clientIP)
		r.event(EventRegistered)
		return Status{Valid: true, Registered: true}
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		r.logger.Errorf("registry: entry for %q could not be decoded: %v", serviceID, err)
		r.event(EventDecodeError)
		return Status{Valid: true, Registered: false}
	}

	match, err := Verify(password, entry.PasswordHash)
	if err != nil {
		r.logger.Errorf("registry: entry for %q could not be verified: %v", serviceID, err)
		r.event(EventDecodeError)
		return Status{Valid: true, Registered: false}
	}

	if !match {
		registered := time.UnixMilli(entry.RegisteredAt).UTC().Format(time.RFC3339)
		r.logger.Warnf("service id %q password mismatch (ip %s); it was registered at %s. "+
			"Rate limits may collide with other users. Use a unique service id or a dedicated store",
			serviceID, clientIP, registered)
		r.event(EventMismatch)
		return Status{Valid: true, Registered: true, Collision: true}
	}

	entry.LastSeen = now
	r.save(ctx, key, entry)
	r.event(EventValidated)
	return Status{Valid: true, Registered: true, Collision: false}
}

func (r *Registry) save(ctx context.Context, key string, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.Errorf("registry: encoding entry %s: %v", key, err)
		return
	}
	if !r.kv.Set(ctx, key, string(data), EntryTTL) {
		r.logger.Warnf("registry: entry %s was not written", key)
	}
}

func (r *Registry) event(name string) {
	r.recorder.Add(MetricEvent, 1, map[string]string{"event": name})
}

// Package store provides the storage backends used by limitly.
//
// Currently supported backends:
//   - Client: a Redis connection with an explicit connection state machine.
//     It executes the rate-limit scripts and backs the service registry.
//   - Memory: an in-memory key-value store with expiry, used for the service
//     registry when no registry Redis is configured.
//
// Example usage:
//
//	client, err := store.NewClientFromURL("redis://localhost:6379", store.WithName("rate-limit"))
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	limiter, err := ratelimiter.NewFixedWindow(client, 100, time.Minute)
package store

import (
	"context"
	"sync"
	"time"
)

// memoryEntry stores a value and its expiration time.
type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-memory key-value store with per-key expiry.
//
// It optionally runs a background cleanup goroutine to remove expired entries.
//
// Note: Memory is suitable for single-instance deployments only. It does not
// implement ratelimiter.Store; limits always live in Redis.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates a new Memory instance.
//
// ctx: a parent context used to manage the lifecycle of the background cleanup goroutine.
// cleanupInterval: interval at which expired entries are removed. Pass 0 to disable cleanup.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	kv := store.NewMemory(ctx, time.Minute)
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		go m.runCleanup(ctx, cleanupInterval)
	}

	return m
}

// Get returns the value stored at key if it exists and has not expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, found := m.entries[key]
	if !found {
		return "", false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value at key. A non-positive ttl keeps the entry until it is
// overwritten. Set always succeeds.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return true
}

// Del removes key.
func (m *Memory) Del(_ context.Context, key string) bool {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return true
}

// Len returns the number of stored entries, expired ones included until the
// next cleanup.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// runCleanup periodically removes expired entries.
func (m *Memory) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}

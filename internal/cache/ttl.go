// Package cache provides a small in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache stores values in memory with one TTL for every entry.
// Expired entries are dropped lazily on Get and swept on Set.
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[K]entry[V]
	sets  int
}

// sweepEvery is the number of Sets between expiry sweeps.
const sweepEvery = 256

// NewTTLCache constructs a cache whose entries live for ttl.
// A zero ttl keeps entries forever.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{ttl: ttl, now: time.Now, items: make(map[K]entry[V])}
}

// WithClock replaces the time source. Used by tests.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.now = now
	return c
}

// Get returns a cached value if it exists and has not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Set stores a value.
func (c *TTLCache[K, V]) Set(key K, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}

	c.sets++
	if c.sets%sweepEvery == 0 {
		for k, e := range c.items {
			if c.expired(e) {
				delete(c.items, k)
			}
		}
	}
}

// Delete removes a cached entry.
func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) expired(e entry[V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

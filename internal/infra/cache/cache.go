// Package cache provides the in-memory TTL cache backing the unit catalog.
// A takeoff reads the same unit snapshots dozens of times (expansion plus
// recalculation), so snapshots stay hot between registry mutations; admin
// writes evict eagerly and the TTL bounds how long a price change made
// outside the API can be served stale.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a concurrency-safe TTL cache keyed by unit code or id. A
// snapshot read past its TTL counts as a miss and is refetched from the
// store.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
}

// New creates a cache whose snapshots expire after ttl.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
	}
	// Expired snapshots are misses either way; the sweeper only bounds
	// memory when the catalog churns.
	go c.cleanup()
	return c
}

// Get returns the cached snapshot, reporting a miss when absent or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a snapshot under key for the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete evicts one snapshot, called when an admin mutation invalidates it.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// cleanup sweeps expired snapshots once per TTL so deactivated units do not
// linger in memory.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for k, v := range c.items {
			if now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}

// Package cache implements the generic bounded cache behind every data class
// the graph engine stores: profiles, content, graph snapshots, images, and
// raw event batches.
//
// Eviction is purely insertion-recency based, not LRU: re-Setting a key
// refreshes its timestamp, a Get does not. Expired entries are treated as
// absent on read (lazy expiry) and swept eagerly by Prune.
package cache

import (
	"sync"
	"time"

	"github.com/zapabug/madtrips-sub000/metrics"
)

type entry[T any] struct {
	value      T
	insertedAt time.Time
}

// Cache is a keyed store bounded by TTL and capacity.
type Cache[T any] struct {
	mu      sync.Mutex
	name    string
	ttl     time.Duration
	maxSize int
	entries map[string]entry[T]
	now     func() time.Time
}

// Option configures a Cache at construction time.
type Option[T any] func(*Cache[T])

// WithClock injects a clock, used by tests to advance time deterministically.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		c.now = now
	}
}

// New creates a named cache with the given TTL and capacity.
func New[T any](name string, ttl time.Duration, maxSize int, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name:    name,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]entry[T]),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key. An entry older than the TTL is treated as
// absent and removed on the spot.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return e.value, true
}

// Set inserts or replaces a value, refreshing its insertion timestamp.
// At capacity, the oldest fifth of entries (at least one) is evicted first.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[T]{value: value, insertedAt: c.now()}
}

// Has reports whether a live (non-expired) entry exists without touching it.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.now().Sub(e.insertedAt) <= c.ttl
}

// Delete removes an entry.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// Prune eagerly sweeps all expired entries and returns how many were removed.
func (c *Cache[T]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(removed))
	}
	return removed
}

// Age returns how long ago a key was inserted, or false if absent. Expired
// entries still report an age until pruned; callers compare against their
// own freshness thresholds (the fetcher's stale-while-revalidate tiers).
func (c *Cache[T]) Age(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.insertedAt), true
}

// Len returns the number of physically stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the oldest max(1, size/5) entries by insertion
// time. Caller holds c.mu.
func (c *Cache[T]) evictOldestLocked() {
	n := len(c.entries) / 5
	if n < 1 {
		n = 1
	}

	type aged struct {
		key        string
		insertedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key, e.insertedAt})
	}
	// Partial selection: repeatedly pull the oldest. n is a fifth of a
	// small map, a full sort is not worth the allocation churn.
	for i := 0; i < n && len(all) > 0; i++ {
		oldest := 0
		for j := 1; j < len(all); j++ {
			if all[j].insertedAt.Before(all[oldest].insertedAt) {
				oldest = j
			}
		}
		delete(c.entries, all[oldest].key)
		all[oldest] = all[len(all)-1]
		all = all[:len(all)-1]
	}
	metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(n))
}

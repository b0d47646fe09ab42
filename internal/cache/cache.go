package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Metrics is the subset of monitoring.Metrics the cache reports to.
type Metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// CacheItem represents a cached item with expiration
type CacheItem[V any] struct {
	Value     V
	ExpiresAt time.Time
}

func (c *CacheItem[V]) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cache provides thread-safe caching with TTL
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]*CacheItem[V]
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
	stop    chan struct{}
	once    sync.Once
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithMetrics reports hits and misses.
func WithMetrics[V any](m Metrics) Option[V] {
	return func(c *Cache[V]) { c.metrics = m }
}

// WithClock overrides the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithCleanupInterval starts a janitor that evicts expired entries.
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if d > 0 {
			go c.cleanup(d)
		}
	}
}

// NewCache creates a new cache with the specified TTL
func NewCache[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]*CacheItem[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a cache key for a subject on a chain. Addresses compare
// case-insensitively.
func Key(scope string, chainID int64, subject string) string {
	return fmt.Sprintf("%s:%d:%s", scope, chainID, strings.ToLower(strings.TrimSpace(subject)))
}

// cleanup removes expired items periodically
func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache[V]) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || item.expired(c.now()) {
		if exists {
			c.Delete(key)
		}
		if c.metrics != nil {
			c.metrics.IncrementCacheMiss()
		}
		var zero V
		return zero, false
	}

	if c.metrics != nil {
		c.metrics.IncrementCacheHit()
	}
	return item.Value, true
}

// Set stores an item in the cache
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem[V])
}

// Size returns the number of items in the cache
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.expired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Close stops the janitor.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingMetrics struct {
	mu           sync.Mutex
	hits, misses int
}

func (m *countingMetrics) IncrementCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) IncrementCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func TestCacheTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	metrics := &countingMetrics{}

	c := NewCache[int](time.Minute, WithClock[int](clock), WithMetrics[int](metrics))
	defer c.Close()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 42)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Size())

	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 2, metrics.misses)
}

func TestCacheStatsAndEviction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCache[string](time.Minute, WithClock[string](func() time.Time { return now }))

	c.Set("old", "x")
	now = now.Add(30 * time.Second)
	c.Set("new", "y")
	now = now.Add(45 * time.Second)

	stats := c.Stats()
	assert.Equal(t, 2, stats["total_items"])
	assert.Equal(t, 1, stats["expired_items"])

	c.evictExpired()
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "token:1:0xabc", Key("token", 1, " 0xABC "))
	assert.NotEqual(t, Key("token", 1, "0xabc"), Key("token", 56, "0xabc"))
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewCache[int](time.Minute, WithCleanupInterval[int](time.Millisecond))
	c.Close()
	assert.NotPanics(t, c.Close)
}

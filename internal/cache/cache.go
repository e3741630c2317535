// Package cache provides a size-bounded, TTL-aware LRU cache.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seanotes/seanotes/internal/metrics"
)

type entry[V any] struct {
	value       V
	storedAt    time.Time
	ttl         time.Duration
	accessCount int64
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Stats summarises cache usage.
type Stats struct {
	Size         int     `json:"size"`
	MaxSize      int     `json:"maxSize"`
	TotalAccess  int64   `json:"totalAccess"`
	ExpiredCount int     `json:"expiredCount"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hitRate"`
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	name       string
	maxSize    int
	defaultTTL time.Duration

	mu     sync.Mutex
	items  *lru.Cache[string, *entry[V]]
	hits   int64
	misses int64

	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a cache holding at most maxSize entries, each living defaultTTL unless overridden.
func New[V any](name string, maxSize int, defaultTTL time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	items, err := lru.New[string, *entry[V]](maxSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Cache[V]{
		name:       name,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      items,
		now:        time.Now,
	}
}

// WithMetrics records hits and misses on m.
func (c *Cache[V]) WithMetrics(m *metrics.Metrics) *Cache[V] {
	c.metrics = m
	return c
}

// Name returns the cache name used in metrics.
func (c *Cache[V]) Name() string {
	return c.name
}

// Set stores value under key. Expired entries are dropped first; when the cache is
// full the least recently used entry is evicted.
func (c *Cache[V]) Set(key string, value V, ttl ...time.Duration) {
	itemTTL := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		itemTTL = ttl[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.removeExpiredLocked(now)
	c.items.Add(key, &entry[V]{value: value, storedAt: now, ttl: itemTTL})
}

// Get returns the value for key. An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items.Get(key)
	if ok && e.expired(c.now()) {
		c.items.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		c.metrics.RecordCacheLookup(c.name, false)
		return zero, false
	}
	e.accessCount++
	c.hits++
	c.metrics.RecordCacheLookup(c.name, true)
	return e.value, true
}

// GetOrLoad returns the cached value or stores the result of load.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Has reports whether a live entry exists for key.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key, reporting whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Remove(key)
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.items.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear empties the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *Cache[V]) Len() int {
	return c.items.Len()
}

// RemoveExpired drops all expired entries and returns how many were removed.
func (c *Cache[V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.now())
}

func (c *Cache[V]) removeExpiredLocked(now time.Time) int {
	removed := 0
	for _, key := range c.items.Keys() {
		if e, ok := c.items.Peek(key); ok && e.expired(now) {
			c.items.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats reports current usage. HitRate is a percentage of lookups that hit.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := Stats{
		Size:    c.items.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	for _, key := range c.items.Keys() {
		e, ok := c.items.Peek(key)
		if !ok {
			continue
		}
		stats.TotalAccess += e.accessCount
		if e.expired(now) {
			stats.ExpiredCount++
		}
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups) * 100
	}
	return stats
}

// StartJanitor removes expired entries every interval until ctx is done.
// The returned channel is closed when the janitor exits.
func (c *Cache[V]) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RemoveExpired()
			}
		}
	}()
	return done
}

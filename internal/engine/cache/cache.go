// Package cache holds batch results keyed by fingerprint, bounded by entry
// count (least recently accessed goes first) and by age since insertion.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"comment-insights/internal/common/errors"
	"comment-insights/internal/common/metrics"
	"comment-insights/internal/models"
)

// Entry is one cached batch result.
type Entry struct {
	Fingerprint string
	Result      models.BatchResult
	InsertedAt  time.Time
}

// Stats reports cache performance counters.
type Stats struct {
	Entries     int    `json:"entries"`
	Capacity    int    `json:"capacity"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Cache is safe for concurrent use. The mutex only guards local bookkeeping.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	name     string

	order *list.List // front = most recently accessed
	items map[string]*list.Element
	stats Stats
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithName sets the metrics label; useful when several tenants own caches.
func WithName(name string) Option {
	return func(c *Cache) { c.name = name }
}

func New(capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if capacity < 1 {
		return nil, errors.NewConfigurationError(fmt.Sprintf("cache capacity must be positive, got %d", capacity))
	}
	if ttl <= 0 {
		return nil, errors.NewConfigurationError(fmt.Sprintf("cache ttl must be positive, got %s", ttl))
	}

	c := &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		name:     "default",
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns a copy of the cached result. Expired entries are removed and
// reported as misses. A hit makes the entry the most recently accessed.
func (c *Cache) Get(fingerprint string) (models.BatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		c.stats.Misses++
		metrics.CacheOperations.WithLabelValues(c.name, "miss").Inc()
		return models.BatchResult{}, false
	}

	entry := el.Value.(*Entry)
	if c.expired(entry) {
		c.removeElement(el)
		c.stats.Expirations++
		c.stats.Misses++
		metrics.CacheOperations.WithLabelValues(c.name, "expiry").Inc()
		metrics.CacheOperations.WithLabelValues(c.name, "miss").Inc()
		return models.BatchResult{}, false
	}

	c.order.MoveToFront(el)
	c.stats.Hits++
	metrics.CacheOperations.WithLabelValues(c.name, "hit").Inc()
	return entry.Result.Clone(), true
}

// Put stores a copy of result. Re-putting a key refreshes its insertion time.
// Going over capacity evicts the least recently accessed entry.
func (c *Cache) Put(fingerprint string, result models.BatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.CacheOperations.WithLabelValues(c.name, "store").Inc()

	if el, ok := c.items[fingerprint]; ok {
		entry := el.Value.(*Entry)
		entry.Result = result.Clone()
		entry.InsertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&Entry{
		Fingerprint: fingerprint,
		Result:      result.Clone(),
		InsertedAt:  c.now(),
	})
	c.items[fingerprint] = el

	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
		c.stats.Evictions++
		metrics.CacheOperations.WithLabelValues(c.name, "eviction").Inc()
	}
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.order.Len()))
}

// Contains reports presence of a live entry without touching recency.
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	return ok && !c.expired(el.Value.(*Entry))
}

// Keys lists fingerprints from most to least recently accessed.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Fingerprint)
	}
	return keys
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*Entry)) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		c.stats.Expirations += uint64(removed)
		metrics.CacheOperations.WithLabelValues(c.name, "expiry").Add(float64(removed))
	}
	return removed
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
	metrics.CacheEntries.WithLabelValues(c.name).Set(0)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// StartJanitor sweeps expired entries every interval until ctx is done.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

func (c *Cache) expired(e *Entry) bool {
	return !c.now().Before(e.InsertedAt.Add(c.ttl))
}

// caller holds c.mu
func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*Entry).Fingerprint)
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.order.Len()))
}

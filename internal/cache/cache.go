// Package cache holds short-lived read-mostly lookups such as campaign
// metadata and canned responses.
//
// Values are stored and returned as-is; callers treat them as immutable
// snapshots and replace them with Set rather than mutating in place.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	gen     uint64
	ttl     time.Duration
	now     func() time.Time
	observe func(hit bool)
}

type Option[V any] func(*Cache[V])

func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithObserver is called on every Get with whether it hit.
func WithObserver[V any](fn func(hit bool)) Option[V] {
	return func(c *Cache[V]) { c.observe = fn }
}

// New returns a cache whose entries expire after ttl. A non-positive ttl
// disables caching: every Get misses.
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{items: make(map[string]entry[V]), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && !c.now().Before(e.expires) {
		ok = false
	}
	if c.observe != nil {
		c.observe(ok)
	}
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.gen++
	c.mu.Unlock()
}

// DeleteFunc removes every entry for which match returns true and reports
// how many were removed.
func (c *Cache[V]) DeleteFunc(match func(key string, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	n := 0
	for k, e := range c.items {
		if match(k, e.value) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Errors are not cached. Concurrent misses may each call load.
// A load that overlaps a Delete or DeleteFunc is returned but not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.setIfGen(key, v, gen)
	return v, nil
}

func (c *Cache[V]) setIfGen(key string, value V, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	if c.gen == gen {
		c.items[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

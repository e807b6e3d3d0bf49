package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock abstracts time so cache expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

type ttlEntry[V any] struct {
	value    V
	expireAt time.Time
}

// TTLCache is a process-local read-mostly cache. Entries expire after a fixed
// TTL; concurrent misses for the same key share one in-flight fetch.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry[V]
	ttl     time.Duration
	clock   Clock
	group   singleflight.Group
}

// NewTTL builds a TTLCache. A nil clock falls back to the system clock.
func NewTTL[V any](ttl time.Duration, clock Clock) *TTLCache[V] {
	if clock == nil {
		clock = SystemClock()
	}
	return &TTLCache[V]{
		entries: make(map[string]ttlEntry[V]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached value when present and not expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().After(e.expireAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the cache's TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = ttlEntry[V]{value: value, expireAt: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes the given keys.
func (c *TTLCache[V]) Delete(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *TTLCache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]ttlEntry[V])
	c.mu.Unlock()
}

// Len reports the number of entries, expired ones included.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrFetch returns the cached value or runs fetch, deduplicating concurrent
// fetches for the same key.
func (c *TTLCache[V]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

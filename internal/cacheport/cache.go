// Package cacheport declares the Cache Port used to memoize router and
// classifier lookups (get/set/delete with a TTL), and an in-process
// implementation backed by an LRU with lazy expiry. The spec treats the
// underlying cache store as an external collaborator; this package supplies
// the reference implementation used when no external cache is configured.
package cacheport

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the port the core consumes for memoizing expensive lookups.
type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

type entry struct {
	value    []byte
	expireAt time.Time
}

// LRUCache is an in-process Cache backed by a size-bounded LRU, with TTL
// checked lazily on Get (expired entries are evicted on access rather than
// through a background sweep).
type LRUCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, entry]
}

// NewLRUCache creates an LRUCache holding at most size entries.
func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = 1000
	}
	inner, _ := lru.New[string, entry](size)
	return &LRUCache{inner: inner}
}

// Get returns the cached value if present and not expired.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		c.inner.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with an optional ttl (zero means no expiry).
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.inner.Add(key, e)
}

// Delete removes key from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

var _ Cache = (*LRUCache)(nil)

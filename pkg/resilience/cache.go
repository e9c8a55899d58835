package resilience

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a typed, process-wide cache pool with a fixed capacity and TTL.
// Entries are evicted least-recently-used when the pool is full and lazily
// dropped once expired. Safe for concurrent use.
//
// Pools are constructed explicitly and injected into whatever wraps an
// external call — never reached through a hidden singleton — so tests can
// substitute a tiny or zero-TTL pool.
type Cache[V any] struct {
	lru  *expirable.LRU[string, V]
	ttl  time.Duration
	hits atomic.Int64
	miss atomic.Int64
}

// NewCache creates a cache pool holding at most capacity entries, each
// expiring ttl after insertion.
func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		lru: expirable.NewLRU[string, V](capacity, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the live value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.miss.Add(1)
	}
	return v, ok
}

// Set stores value under key with the pool TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the current number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats reports cumulative hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.miss.Load()
}

// GetOr returns the cached value for key, or invokes compute, stores the
// result, and returns it. compute errors are never cached. Concurrent
// misses on the same key each invoke compute; calls are not coalesced.
func (c *Cache[V]) GetOr(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Key derives a deterministic cache key from an operation name and its
// arguments. Arguments are serialized to JSON positionally and hashed, so
// equal calls always map to the same key regardless of value size.
func Key(op string, args ...any) string {
	payload, err := json.Marshal(args)
	if err != nil {
		// Non-serializable arguments fall back to their printed form.
		payload = fmt.Appendf(nil, "%v", args)
	}
	sum := sha256.Sum256(payload)
	return op + ":" + hex.EncodeToString(sum[:8])
}

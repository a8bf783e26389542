// Package history implements the at-most-once duplicate filter: a
// (client-endpoint, request-id) keyed memo of previously sent reply bytes.
package history

import (
	"sync"
	"time"
)

// TTL is how long a cached reply remains eligible for re-delivery before
// lazy eviction may drop it (§3, §4.3).
const TTL = 5 * time.Minute

// Key identifies one client's request for deduplication purposes. Endpoint
// must already be normalized by the caller (resolved address family,
// numeric host and port) so OS-level alias variants of the same peer never
// produce distinct keys.
type Key struct {
	Endpoint  string
	RequestID uint32
}

type entry struct {
	reply      []byte
	insertedAt time.Time
}

// Cache is the at-most-once reply memo. Disabled entirely under
// at-least-once (the dispatcher simply never consults it).
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]entry), now: time.Now}
}

// Lookup returns the cached reply bytes for key, if present and unexpired.
func (c *Cache) Lookup(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > TTL {
		delete(c.entries, key)
		return nil, false
	}
	return e.reply, true
}

// Store inserts reply under key, sweeping expired entries first. Cached
// reply bytes are never mutated or re-derived after insertion.
func (c *Cache) Store(key Key, reply []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	c.entries[key] = entry{reply: reply, insertedAt: c.now()}
}

func (c *Cache) evictExpiredLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > TTL {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of entries currently cached, for diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package services

import (
	"sync"
	"time"
)

// cacheEntry pairs a value with its expiry deadline.
type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL cache for reference-data lookups. Expired entries are
// dropped lazily on read and in bulk by Purge.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache with the given default TTL. A non-positive TTL
// disables expiry.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached value, or false when absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores a value under the default TTL.
func (c *Cache) Set(key string, value any) {
	var deadline time.Time
	if c.ttl > 0 {
		deadline = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: deadline}
	c.mu.Unlock()
}

// Purge removes all expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-entry TTL and a size bound.
type MemoryProvider struct {
	mu         sync.Mutex
	data       map[string]entry
	maxEntries int
	now        func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty cache. maxEntries <= 0 means unbounded.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	return &MemoryProvider{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the cached value, or ErrCacheMiss when absent or expired.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.expired(it) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores value; ttl <= 0 keeps it until evicted.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.evictLocked()
	}
	c.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes an entry.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
	return nil
}

func (c *MemoryProvider) expired(it entry) bool {
	return !it.expiresAt.IsZero() && c.now().After(it.expiresAt)
}

// evictLocked drops expired entries and, if still full, the entry closest to expiry.
// Entries without a TTL are evicted last.
func (c *MemoryProvider) evictLocked() {
	for key, it := range c.data {
		if c.expired(it) {
			delete(c.data, key)
		}
	}
	if len(c.data) < c.maxEntries {
		return
	}

	var victim string
	var victimAt time.Time
	for key, it := range c.data {
		switch {
		case victim == "":
			victim, victimAt = key, it.expiresAt
		case victimAt.IsZero() && !it.expiresAt.IsZero():
			victim, victimAt = key, it.expiresAt
		case !it.expiresAt.IsZero() && it.expiresAt.Before(victimAt):
			victim, victimAt = key, it.expiresAt
		}
	}
	delete(c.data, victim)
}

package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-search/internal/weather"
)

var (
	// ErrNotFound is returned when nothing is cached for a key.
	ErrNotFound = errors.New("no cached weather for key")
	// ErrExpired is returned when the cached payload is older than the cache window.
	ErrExpired = errors.New("cached weather expired")
)

type cachedPayload struct {
	payload  weather.Payload
	storedAt time.Time
}

// MemoryCache is a concurrency-safe in-memory cache of weather payloads keyed by query.
type MemoryCache struct {
	mu sync.RWMutex

	// key: query key, value: last payload fetched for it
	data map[string]cachedPayload

	// retention configuration
	maxEntries int           // max number of cached queries
	maxAge     time.Duration // how long a payload may be served without a fetch

	now func() time.Time
}

// NewMemoryCache creates a new MemoryCache with optional limits.
// If maxEntries is <= 0, it is treated as unlimited. If maxAge is <= 0 nothing is served.
func NewMemoryCache(maxEntries int, maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:       make(map[string]cachedPayload),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Put stores the payload for key, replacing any previous one, and enforces retention.
func (c *MemoryCache) Put(key string, payload weather.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.data[key] = cachedPayload{payload: payload, storedAt: now}

	// Enforce retention by age.
	if c.maxAge > 0 {
		cutoff := now.Add(-c.maxAge)
		for k, v := range c.data {
			if v.storedAt.Before(cutoff) {
				delete(c.data, k)
			}
		}
	}

	// Enforce retention by count, evicting the oldest entries first.
	for c.maxEntries > 0 && len(c.data) > c.maxEntries {
		var (
			oldestKey string
			oldestAt  time.Time
		)
		for k, v := range c.data {
			if oldestKey == "" || v.storedAt.Before(oldestAt) {
				oldestKey, oldestAt = k, v.storedAt
			}
		}
		delete(c.data, oldestKey)
	}
}

// Get returns the cached payload for key if it is still inside the cache window.
func (c *MemoryCache) Get(key string) (weather.Payload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok {
		return weather.Payload{}, ErrNotFound
	}
	if c.maxAge <= 0 || c.now().Sub(entry.storedAt) > c.maxAge {
		return weather.Payload{}, ErrExpired
	}
	return entry.payload, nil
}

// Len returns the number of cached queries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

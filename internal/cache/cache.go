// Package cache provides a small in-process TTL cache for generated answers,
// keyed by the literal prompt text. The cache is an optimization only:
// correctness never depends on its contents, and entries vanish on restart.
package cache

import (
	"sync"
	"time"
)

// janitorInterval is how often expired entries are swept.
const janitorInterval = time.Minute

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is a TTL string cache safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration

	done chan struct{}
	once sync.Once

	// now is swapped in tests to control expiry.
	now func() time.Time
}

// New creates a cache whose entries expire after ttl. Close must be called
// to stop the background sweeper.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor()
	return c
}

// Get returns the cached value for key and whether it was present and fresh.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

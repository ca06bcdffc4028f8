// Package memory is an in-process, TTL-expiring cache.Cache implementation
// for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shipforge/orchestrator/internal/app/cache"
)

type entry struct {
	value      []byte
	expiration time.Time
}

// Cache is a thread-safe in-process map with per-entry TTL and a
// background sweep that evicts expired entries.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New creates a Cache. defaultTTL is used for Put calls with ttl <= 0.
// A background goroutine sweeps expired entries every cleanupInterval;
// pass 0 to disable the sweep (entries still expire lazily on Get).
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
	}
	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}
	return c
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, e := range c.entries {
			if now.After(e.expiration) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

func (c *Cache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: cp, expiration: time.Now().Add(ttl)}
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiration) {
		return nil, false, nil
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, true, nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for key, e := range c.entries {
		if now.After(e.expiration) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"agentpay/internal/core/ports"
)

type idempotencyEntry struct {
	value     string
	expiresAt time.Time
}

// IdempotencyCache implements ports.IdempotencyCache in memory.
type IdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

// NewIdempotencyCache creates an empty cache.
func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{entries: make(map[string]idempotencyEntry), now: time.Now}
}

func (c *IdempotencyCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return "", nil
	}
	return e.value, nil
}

// Reserve claims key with a pending marker unless an unexpired entry holds it.
func (c *IdempotencyCache) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.entries[key] = idempotencyEntry{value: ports.IdempotencyPending, expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *IdempotencyCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = idempotencyEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *IdempotencyCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.value == ports.IdempotencyPending {
		delete(c.entries, key)
	}
	return nil
}

// live returns the unexpired entry for key, dropping an expired one.
func (c *IdempotencyCache) live(key string) (idempotencyEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return idempotencyEntry{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return idempotencyEntry{}, false
	}
	return e, true
}

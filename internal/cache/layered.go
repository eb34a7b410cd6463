package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-layer cache: an in-process memory layer in front of
// a durable layer shared between pipeline instances
type LayeredCache struct {
	memory    Cache
	durable   Cache
	memoryTTL time.Duration
}

// NewLayeredCache creates a new layered cache. Entries promoted into memory live at most memoryTTL.
func NewLayeredCache(memory Cache, durable Cache, memoryTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory:    memory,
		durable:   durable,
		memoryTTL: memoryTTL,
	}
}

// Get retrieves a value from the cache (checks memory first, then the durable layer)
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.memory.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.durable.Get(ctx, key); found {
		// Promote to memory cache
		_ = c.memory.Set(ctx, key, val, c.memoryTTL)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers. A memory write never fails the call; the durable write does.
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	memTTL := c.memoryTTL
	if ttl > 0 && (memTTL == 0 || ttl < memTTL) {
		memTTL = ttl
	}
	_ = c.memory.Set(ctx, key, value, memTTL)

	return c.durable.Set(ctx, key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	_ = c.memory.Delete(ctx, key)
	return c.durable.Delete(ctx, key)
}

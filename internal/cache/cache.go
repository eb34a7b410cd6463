// Package cache provides the layered byte cache used for geocoding results.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key builds a cache key from a lookup kind and the exact query string.
// The query is not normalized: two spellings of an address are two entries.
func Key(kind, query string) string {
	return kind + ":" + query
}

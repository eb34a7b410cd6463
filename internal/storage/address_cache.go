package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ppiankov/newsflow/internal/cache"
	"github.com/ppiankov/newsflow/internal/logging"
)

// AddressCache is the durable geocoding cache, keyed by the exact query string
type AddressCache struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

var _ cache.Cache = (*AddressCache)(nil)

// NewAddressCache creates a cache on db
func NewAddressCache(db DB, logger *slog.Logger) *AddressCache {
	return &AddressCache{
		db:     db,
		logger: logging.OrDefault(logger).With("component", "address_cache"),
		now:    time.Now,
	}
}

// Get returns the cached locations document. Read errors are logged and reported as a miss.
func (c *AddressCache) Get(ctx context.Context, key string) ([]byte, bool) {
	query, args, err := psql.Select("locations").
		From(addressCacheTable).
		Where(sq.Eq{"query": key}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": c.now().UTC()}}).
		ToSql()
	if err != nil {
		return nil, false
	}

	var data []byte
	err = c.db.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("address cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

// Set upserts the entry. ttl <= 0 stores it without expiry.
func (c *AddressCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now().UTC()
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	b := psql.Insert(addressCacheTable).
		Columns("query", "locations", "updated_at", "expires_at").
		Values(key, value, now, expiresAt).
		Suffix("ON CONFLICT (query) DO UPDATE SET locations = EXCLUDED.locations, " +
			"updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at")
	if _, err := exec(ctx, c.db, b); err != nil {
		return fmt.Errorf("upsert address cache %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry
func (c *AddressCache) Delete(ctx context.Context, key string) error {
	if _, err := exec(ctx, c.db, psql.Delete(addressCacheTable).Where(sq.Eq{"query": key})); err != nil {
		return fmt.Errorf("delete address cache %q: %w", key, err)
	}
	return nil
}

package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ppiankov/newsflow/internal/cache"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
)

// Cache kinds, also used as metric labels
const (
	KindAddress = "address"
	KindKeyword = "keyword"
)

// CacheRecorder observes cache lookups
type CacheRecorder interface {
	RecordGeocodeCache(kind string, hit bool)
}

// CachingGeocoder caches results per exact query string. Empty results are cached too,
// with their own (usually shorter) TTL; errors are never cached.
type CachingGeocoder struct {
	next     Geocoder
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
	recorder CacheRecorder
	logger   *slog.Logger
}

var _ Geocoder = (*CachingGeocoder)(nil)

// NewCachingGeocoder wraps next with c. recorder may be nil.
func NewCachingGeocoder(next Geocoder, c cache.Cache, ttl, emptyTTL time.Duration, recorder CacheRecorder, logger *slog.Logger) *CachingGeocoder {
	return &CachingGeocoder{
		next:     next,
		cache:    c,
		ttl:      ttl,
		emptyTTL: emptyTTL,
		recorder: recorder,
		logger:   logging.OrDefault(logger).With("component", "geocode_cache"),
	}
}

// GeocodeByAddress serves address lookups from the cache when possible
func (g *CachingGeocoder) GeocodeByAddress(ctx context.Context, address string) ([]model.Location, error) {
	return g.lookup(ctx, KindAddress, address, g.next.GeocodeByAddress)
}

// GeocodeByKeyword serves keyword lookups from the cache when possible
func (g *CachingGeocoder) GeocodeByKeyword(ctx context.Context, keyword string) ([]model.Location, error) {
	return g.lookup(ctx, KindKeyword, keyword, g.next.GeocodeByKeyword)
}

func (g *CachingGeocoder) lookup(
	ctx context.Context,
	kind, query string,
	fetch func(context.Context, string) ([]model.Location, error),
) ([]model.Location, error) {
	key := cache.Key(kind, query)

	if data, ok := g.cache.Get(ctx, key); ok {
		var locations []model.Location
		if err := json.Unmarshal(data, &locations); err == nil {
			g.record(kind, true)
			if locations == nil {
				locations = []model.Location{}
			}
			return locations, nil
		}
		g.logger.Warn("dropping unreadable cache entry", "key", key)
		if err := g.cache.Delete(ctx, key); err != nil {
			g.logger.Debug("cache delete failed", "key", key, "error", err)
		}
	}
	g.record(kind, false)

	locations, err := fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	ttl := g.ttl
	if len(locations) == 0 {
		ttl = g.emptyTTL
	}
	if data, err := json.Marshal(locations); err == nil {
		if err := g.cache.Set(ctx, key, data, ttl); err != nil {
			g.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}

	return locations, nil
}

func (g *CachingGeocoder) record(kind string, hit bool) {
	if g.recorder != nil {
		g.recorder.RecordGeocodeCache(kind, hit)
	}
}

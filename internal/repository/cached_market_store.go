package repository

import (
	"context"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	pkgcache "PivotScan/pkg/cache"
)

// DefaultBarCacheTTL keeps repeated evaluation cycles from re-querying
// storage for the same bars.
const DefaultBarCacheTTL = 60 * time.Second

// CachedMarketStore is a read-through decorator over MarketData.
// Only FetchBars is cached; tick-range reads go straight to storage.
type CachedMarketStore struct {
	inner domrepo.MarketData
	cache pkgcache.Service
	ttl   time.Duration
}

// NewCachedMarketStore wraps a MarketData source with a short-TTL cache.
func NewCachedMarketStore(inner domrepo.MarketData, cache pkgcache.Service, ttl time.Duration) *CachedMarketStore {
	if ttl <= 0 {
		ttl = DefaultBarCacheTTL
	}
	return &CachedMarketStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedMarketStore) FetchTicks(ctx context.Context, instrument string, start, end time.Time) ([]models.Tick, error) {
	return s.inner.FetchTicks(ctx, instrument, start, end)
}

func (s *CachedMarketStore) FetchBars(ctx context.Context, instrument string, count int, tf domrepo.Timeframe, field domrepo.BarField) ([]float64, error) {
	key := pkgcache.Key("bars", instrument, string(tf), string(field), count)

	var cached []float64
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	bars, err := s.inner.FetchBars(ctx, instrument, count, tf, field)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, bars, s.ttl)
	return bars, nil
}

var _ domrepo.MarketData = (*CachedMarketStore)(nil)

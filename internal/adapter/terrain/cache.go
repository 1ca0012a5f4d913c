package terrain

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/couchcryptid/atei-etl/internal/domain"
	"github.com/couchcryptid/atei-etl/internal/observability"
)

// Provider is the interface wrapped by CachedProvider.
type Provider interface {
	Derive(ctx context.Context, kind domain.Derivative, dem *domain.Grid) (*domain.Grid, error)
}

// CachedProvider wraps a Provider with an in-memory LRU cache keyed by the
// derivative and the DEM window digest. Overlapping zones of the same job
// that crop to identical windows share one request per derivative.
type CachedProvider struct {
	inner   Provider
	metrics *observability.Metrics

	mu    sync.Mutex
	cache *lru.Cache
}

type cacheKey struct {
	kind   domain.Derivative
	digest string
}

// NewCachedProvider creates a cache decorator around a terrain provider.
func NewCachedProvider(inner Provider, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		metrics: metrics,
		cache:   lru.New(maxEntries),
	}
}

func (c *CachedProvider) Derive(ctx context.Context, kind domain.Derivative, dem *domain.Grid) (*domain.Grid, error) {
	key := cacheKey{kind: kind, digest: dem.Digest()}

	c.mu.Lock()
	v, ok := c.cache.Get(key)
	c.mu.Unlock()
	if ok {
		c.metrics.TerrainCache.WithLabelValues(string(kind), "hit").Inc()
		return v.(*domain.Grid), nil
	}
	c.metrics.TerrainCache.WithLabelValues(string(kind), "miss").Inc()

	g, err := c.inner.Derive(ctx, kind, dem)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, g)
	c.mu.Unlock()
	return g, nil
}

// Len returns the number of cached layers.
func (c *CachedProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

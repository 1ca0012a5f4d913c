package terrain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/atei-etl/internal/domain"
	"github.com/couchcryptid/atei-etl/internal/observability"
)

// --- mock for cache tests ---

type countingProvider struct {
	mu    sync.Mutex
	calls map[domain.Derivative]int
	err   error
}

func (m *countingProvider) Derive(_ context.Context, kind domain.Derivative, dem *domain.Grid) (*domain.Grid, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[domain.Derivative]int)
	}
	m.calls[kind]++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return domain.NewFilledGrid(dem.NX, dem.NY, dem.CellSize, dem.Extent, dem.NoData, 1)
}

func (m *countingProvider) count(kind domain.Derivative) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// --- CachedProvider tests ---

func TestCachedProvider_CacheHit(t *testing.T) {
	inner := &countingProvider{}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedProvider(inner, 10, metrics)
	dem := testDEM(t)

	g1, err := cached.Derive(context.Background(), domain.DerivSlope, dem)
	require.NoError(t, err)
	g2, err := cached.Derive(context.Background(), domain.DerivSlope, testDEM(t))
	require.NoError(t, err)

	assert.Same(t, g1, g2)
	assert.Equal(t, 1, inner.count(domain.DerivSlope), "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TerrainCache.WithLabelValues("slope", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TerrainCache.WithLabelValues("slope", "miss")))
}

func TestCachedProvider_KeyedByDerivativeAndWindow(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())
	dem := testDEM(t)
	other := testDEM(t)
	require.NoError(t, other.Set(0, 0, 1801))

	_, _ = cached.Derive(context.Background(), domain.DerivSlope, dem)
	_, _ = cached.Derive(context.Background(), domain.DerivAspect, dem)
	_, _ = cached.Derive(context.Background(), domain.DerivSlope, other)

	assert.Equal(t, 2, inner.count(domain.DerivSlope))
	assert.Equal(t, 1, inner.count(domain.DerivAspect))
	assert.Equal(t, 3, cached.Len())
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("terrain service unavailable")}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())
	dem := testDEM(t)

	_, err := cached.Derive(context.Background(), domain.DerivCurvature, dem)
	require.Error(t, err)
	_, err = cached.Derive(context.Background(), domain.DerivCurvature, dem)
	require.Error(t, err)

	assert.Equal(t, 2, inner.count(domain.DerivCurvature))
	assert.Equal(t, 0, cached.Len())
}

func TestCachedProvider_Eviction(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 2, observability.NewMetricsForTesting())
	dem := testDEM(t)

	_, _ = cached.Derive(context.Background(), domain.DerivSlope, dem)
	_, _ = cached.Derive(context.Background(), domain.DerivAspect, dem)
	_, _ = cached.Derive(context.Background(), domain.DerivCurvature, dem) // evicts slope

	assert.Equal(t, 2, cached.Len())
	_, _ = cached.Derive(context.Background(), domain.DerivSlope, dem)
	assert.Equal(t, 2, inner.count(domain.DerivSlope), "slope should have been evicted")
}

func TestCachedProvider_ConcurrentUse(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())
	dem := testDEM(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, kind := range domain.Derivatives {
				_, err := cached.Derive(context.Background(), kind, dem)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, cached.Len())
}

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchProjectionsCaches(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) ([]StockProjection, error) {
		calls++
		return []StockProjection{{ItemID: 1, StockPack: 8, StockBase: 96}}, nil
	}

	first, err := cache.FetchProjections(ctx, loader)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.FetchProjections(ctx, loader)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestBumpInvalidates(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) ([]StockProjection, error) {
		calls++
		return []StockProjection{{ItemID: 1, StockPack: float64(calls)}}, nil
	}

	_, err := cache.FetchProjections(ctx, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	fresh, err := cache.FetchProjections(ctx, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.InDelta(t, 2.0, fresh[0].StockPack, 0.0001)
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	projections, err := cache.FetchProjections(context.Background(), func(context.Context) ([]StockProjection, error) {
		return []StockProjection{{ItemID: 2}}, nil
	})
	require.NoError(t, err)
	require.Len(t, projections, 1)
	require.NoError(t, cache.Bump(context.Background()))
}

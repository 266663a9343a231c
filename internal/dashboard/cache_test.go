package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchStatsCachesLoaderResult(t *testing.T) {
	cache := newTestCache(t)
	calls := 0
	loader := func(context.Context) (Stats, error) {
		calls++
		return Stats{Accounts: 3, Products: 12}, nil
	}

	stats, err := cache.FetchStats(context.Background(), 10, loader)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Accounts)
	require.Equal(t, 1, calls)

	stats, err = cache.FetchStats(context.Background(), 10, loader)
	require.NoError(t, err)
	require.Equal(t, int64(12), stats.Products)
	require.Equal(t, 1, calls)
}

func TestFetchStatsScopedPerCompany(t *testing.T) {
	cache := newTestCache(t)

	_, err := cache.FetchStats(context.Background(), 10, func(context.Context) (Stats, error) {
		return Stats{Accounts: 1}, nil
	})
	require.NoError(t, err)

	stats, err := cache.FetchStats(context.Background(), 11, func(context.Context) (Stats, error) {
		return Stats{Accounts: 2}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Accounts)
}

func TestInvalidateForcesReload(t *testing.T) {
	cache := newTestCache(t)
	calls := 0
	loader := func(context.Context) (Stats, error) {
		calls++
		return Stats{Contacts: int64(calls)}, nil
	}

	_, err := cache.FetchStats(context.Background(), 10, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), 10))

	stats, err := cache.FetchStats(context.Background(), 10, loader)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Contacts)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache

	stats, err := cache.FetchStats(context.Background(), 10, func(context.Context) (Stats, error) {
		return Stats{Accounts: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.Accounts)
}

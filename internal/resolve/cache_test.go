package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchJSONPopulatesOnMiss(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return ProfileGrants{ProfileID: 42, Permissions: []GrantDetail{{Name: "view_dashboard", Sources: []Source{SourceDirect}}}}, nil
	}

	key, err := cache.ProfileKey(ctx, 42)
	require.NoError(t, err)

	var first ProfileGrants
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, int64(42), first.ProfileID)
	require.Equal(t, 1, loads)

	var second ProfileGrants
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.Equal(t, 1, loads, "second fetch must come from cache")
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.ProfileKey(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.ProfileKey(ctx, 7)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheInvalidateProfiles(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	loader := func(context.Context) (interface{}, error) {
		return ProfileGrants{ProfileID: 7}, nil
	}
	key, err := cache.ProfileKey(ctx, 7)
	require.NoError(t, err)
	var grants ProfileGrants
	require.NoError(t, cache.FetchJSON(ctx, key, &grants, loader))
	require.True(t, mr.Exists(key))

	require.NoError(t, cache.InvalidateProfiles(ctx, []int64{7}))
	require.False(t, mr.Exists(key))
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.ProfileKey(ctx, 1)
	require.NoError(t, err)

	var grants ProfileGrants
	err = cache.FetchJSON(ctx, key, &grants, func(context.Context) (interface{}, error) {
		return ProfileGrants{ProfileID: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), grants.ProfileID)

	require.NoError(t, cache.Bump(ctx))
	require.NoError(t, cache.InvalidateProfiles(ctx, []int64{1}))
}

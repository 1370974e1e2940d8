package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewCacheManager(NewRedisCache(client, "tripfinder"))
}

func TestRedisCache_PrefixAndMiss(t *testing.T) {
	mr, cm := setupTestCache(t)
	ctx := context.Background()

	_, err := cm.Get(ctx, AirportsKey())
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cm.Set(ctx, AirportsKey(), []byte("[]"), time.Minute))
	assert.True(t, mr.Exists("tripfinder:airports:all"))

	mr.FastForward(2 * time.Minute)
	_, err = cm.Get(ctx, AirportsKey())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheManager_DeleteAndClear(t *testing.T) {
	mr, cm := setupTestCache(t)
	ctx := context.Background()

	for _, k := range DirectoryKeys() {
		require.NoError(t, cm.SetJSON(ctx, k, []string{"SNN"}, time.Hour))
	}
	require.NoError(t, cm.SetJSON(ctx, ExchangeRateKey("gbp", "eur"), 1.17, time.Hour))

	require.NoError(t, cm.Delete(ctx, DirectoryKeys()...))
	assert.False(t, mr.Exists("tripfinder:airports:all"))
	assert.True(t, mr.Exists("tripfinder:fx:GBP:EUR"))

	require.NoError(t, cm.Clear(ctx))
	assert.False(t, mr.Exists("tripfinder:fx:GBP:EUR"))
}

func TestGetOrLoad(t *testing.T) {
	_, cm := setupTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"France", "Italy"}, nil
	}

	first, err := GetOrLoad(ctx, cm, CountriesKey(), time.Hour, load)
	require.NoError(t, err)
	second, err := GetOrLoad(ctx, cm, CountriesKey(), time.Hour, load)
	require.NoError(t, err)

	assert.Equal(t, []string{"France", "Italy"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	_, cm := setupTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := GetOrLoad(ctx, cm, CountriesKey(), time.Hour, func(context.Context) ([]string, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = cm.Get(ctx, CountriesKey())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetOrLoad_NilManager(t *testing.T) {
	v, err := GetOrLoad(context.Background(), nil, "k", time.Hour, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

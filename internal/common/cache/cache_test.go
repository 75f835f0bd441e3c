package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: server.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, server
}

func fetchNames(calls *int, names []string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		*calls++
		return names, nil
	}
}

func isEmptyNames(v []string) bool { return len(v) == 0 }

func TestGetWithCachedHitsSourceOnce(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()
	calls := 0

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "catalog:impacts", time.Minute, time.Second,
			isEmptyNames, MarshalJSON[[]string], UnmarshalJSON[[]string], fetchNames(&calls, []string{"Alto", "Medio"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"Alto", "Medio"}, got)
	}
	assert.Equal(t, 1, calls)
	assert.True(t, server.Exists("catalog:impacts"))
	assert.Greater(t, server.TTL("catalog:impacts"), time.Duration(0))
}

func TestGetWithCachedStoresEmptyMarker(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()
	calls := 0

	for i := 0; i < 2; i++ {
		got, err := GetWithCached(ctx, c, "catalog:empty", time.Minute, time.Second,
			isEmptyNames, MarshalJSON[[]string], UnmarshalJSON[[]string], fetchNames(&calls, nil))
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, calls)
	value, err := server.Get("catalog:empty")
	require.NoError(t, err)
	assert.Equal(t, NullCacheValue, value)
}

func TestGetWithCachedWithoutCacheOrWithFailures(t *testing.T) {
	ctx := context.Background()
	calls := 0
	got, err := GetWithCached(ctx, nil, "k", time.Minute, time.Second,
		isEmptyNames, MarshalJSON[[]string], UnmarshalJSON[[]string], fetchNames(&calls, []string{"x"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)

	boom := errors.New("boom")
	_, err = GetWithCached(ctx, nil, "k", time.Minute, time.Second,
		isEmptyNames, MarshalJSON[[]string], UnmarshalJSON[[]string],
		func(context.Context) ([]string, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	c, server := newTestCache(t)
	server.Close()
	got, err = GetWithCached(ctx, c, "k", time.Minute, time.Second,
		isEmptyNames, MarshalJSON[[]string], UnmarshalJSON[[]string], fetchNames(&calls, []string{"y"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, got)
}

func TestInvalidateAfter(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, server.Set("directory:responsibles", "[]"))

	failure := errors.New("insert failed")
	err := InvalidateAfter(ctx, c, func(context.Context) error { return failure }, "directory:responsibles")
	require.ErrorIs(t, err, failure)
	assert.True(t, server.Exists("directory:responsibles"))

	require.NoError(t, InvalidateAfter(ctx, c, func(context.Context) error { return nil }, "directory:responsibles"))
	assert.False(t, server.Exists("directory:responsibles"))

	require.NoError(t, InvalidateAfter(ctx, nil, func(context.Context) error { return nil }, "x"))
}

func TestRedisCacheGetMissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	value, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Empty(t, value)
	require.NoError(t, c.Del(context.Background()))
}

func TestNewRedisCacheErrors(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{})
	require.Error(t, err)
	_, err = NewRedisCacheWithClient(nil)
	require.Error(t, err)
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 20; i++ {
		got := JitterTTL(ttl)
		assert.LessOrEqual(t, got, ttl)
		assert.GreaterOrEqual(t, got, ttl-ttl/10)
	}
	assert.Equal(t, time.Duration(0), JitterTTL(0))
	assert.Equal(t, time.Nanosecond, JitterTTL(time.Nanosecond))
}

func TestRedisConfigDefaultsFillOnlyZeroFields(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379", PoolSize: 5, EmptyTTL: time.Second}.withDefaults()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.CatalogTTL)
	assert.Equal(t, time.Second, cfg.EmptyTTL)
}

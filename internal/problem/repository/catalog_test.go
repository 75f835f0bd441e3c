package repository

import (
	"context"
	"testing"

	"itsm/internal/common/cache"
	"itsm/internal/common/db/dbtest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCatalogsWithoutCache(t *testing.T) {
	database := dbtest.Open(t)
	repo := NewCatalogRepository(database, nil)
	ctx := context.Background()

	categories, err := repo.Categories(ctx)
	require.NoError(t, err)
	require.NotNil(t, categories)
	require.Empty(t, categories)

	statuses, err := repo.Statuses(ctx)
	require.NoError(t, err)
	require.Equal(t, []CatalogItem{
		{ID: 1, Name: "Identificado"},
		{ID: 2, Name: "En análisis"},
		{ID: 3, Name: "En implementación"},
		{ID: 4, Name: "Resuelto"},
	}, statuses)

	priorities, err := repo.Priorities(ctx)
	require.NoError(t, err)
	require.Len(t, priorities, 4)
	require.Equal(t, "Crítica", priorities[0].Name)

	impacts, err := repo.Impacts(ctx)
	require.NoError(t, err)
	require.Len(t, impacts, 3)
}

func TestCatalogsAreCached(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	require.NoError(t, err)

	database := dbtest.Open(t)
	dbtest.Exec(t, database, "INSERT INTO problem_category (id, name, description) VALUES (1, 'Red', 'Conectividad')")
	repo := NewCatalogRepository(database, redisCache)
	ctx := context.Background()

	first, err := repo.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []CatalogItem{{ID: 1, Name: "Red", Description: "Conectividad"}}, first)
	require.True(t, server.Exists("catalog:categories"))

	dbtest.Exec(t, database, "INSERT INTO problem_category (id, name, description) VALUES (2, 'Software', '')")
	cached, err := repo.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)

	server.FlushAll()
	fresh, err := repo.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
}

func TestCatalogsFallBackWhenCacheIsDown(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	require.NoError(t, err)
	server.Close()

	repo := NewCatalogRepository(dbtest.Open(t), redisCache)
	impacts, err := repo.Impacts(context.Background())
	require.NoError(t, err)
	require.Len(t, impacts, 3)
}

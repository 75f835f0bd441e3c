package repository

import (
	"context"
	"time"

	"itsm/internal/common/cache"
	"itsm/internal/common/db"
)

const (
	defaultCatalogTTL      = 10 * time.Minute
	defaultCatalogEmptyTTL = 30 * time.Second
	catalogKeyPrefix       = "catalog:"
)

// CatalogRepository reads the reference tables behind the problem form.
// Results are cached; cache failures fall through to the database.
type CatalogRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewCatalogRepository(database db.Database, cacheClient cache.Cache) *CatalogRepository {
	return NewCatalogRepositoryWithTTL(database, cacheClient, defaultCatalogTTL, defaultCatalogEmptyTTL)
}

func NewCatalogRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *CatalogRepository {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultCatalogEmptyTTL
	}
	return &CatalogRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *CatalogRepository) Categories(ctx context.Context) ([]CatalogItem, error) {
	return r.cached(ctx, "categories", "SELECT id, name, description FROM problem_category ORDER BY name")
}

func (r *CatalogRepository) Impacts(ctx context.Context) ([]CatalogItem, error) {
	return r.cached(ctx, "impacts", "SELECT id, description, '' FROM impact ORDER BY id")
}

func (r *CatalogRepository) Statuses(ctx context.Context) ([]CatalogItem, error) {
	return r.cached(ctx, "statuses", "SELECT id, description, '' FROM problem_status ORDER BY id")
}

func (r *CatalogRepository) Priorities(ctx context.Context) ([]CatalogItem, error) {
	return r.cached(ctx, "priorities", "SELECT id, description, '' FROM priority ORDER BY id")
}

func (r *CatalogRepository) cached(ctx context.Context, name, query string) ([]CatalogItem, error) {
	items, err := cache.GetWithCached[[]CatalogItem](
		ctx,
		r.cache,
		catalogKeyPrefix+name,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(items []CatalogItem) bool { return len(items) == 0 },
		cache.MarshalJSON[[]CatalogItem],
		cache.UnmarshalJSON[[]CatalogItem],
		func(ctx context.Context) ([]CatalogItem, error) {
			return r.query(ctx, query)
		},
	)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]CatalogItem, 0)
	}
	return items, nil
}

func (r *CatalogRepository) query(ctx context.Context, query string) ([]CatalogItem, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	items := make([]CatalogItem, 0)
	for rows.Next() {
		var item CatalogItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Description); err != nil {
			return nil, db.Classify(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return items, nil
}

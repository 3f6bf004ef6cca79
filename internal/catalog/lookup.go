// Package catalog resolves products for the cart through the Redis cache,
// falling back to Mongo on a miss.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coffeeshop/shop/internal/cache"
	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

type Lookup struct {
	repo   repository.ProductRepository
	cache  cache.ProductCache
	logger *slog.Logger
	sfg    singleflight.Group
}

func NewLookup(repo repository.ProductRepository, c cache.ProductCache, logger *slog.Logger) *Lookup {
	return &Lookup{
		repo:   repo,
		cache:  c,
		logger: logger,
	}
}

// FindByID returns domain.ErrProductNotFound when the product does not exist.
// Concurrent misses for the same id share one repository read.
func (l *Lookup) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	key := id.Hex()
	v, err, _ := l.sfg.Do(key, func() (interface{}, error) {
		product, err := l.cache.Get(ctx, key)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.logger.Warn("cache get error", "product_id", key, "error", err)
		}

		versions, cacheable := l.versions(ctx, []string{key})
		product, err = l.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if cacheable {
			go l.store(product, versions[0])
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

// FindByIDs returns the products that still exist, keyed by id. Missing ids
// are simply absent from the map.
func (l *Lookup) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	found := make(map[primitive.ObjectID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.Hex()
	}

	cached, err := l.cache.GetMany(ctx, keys)
	if err != nil {
		l.logger.Warn("cache mget error", "error", err)
		cached = nil
	}

	var missing []primitive.ObjectID
	queued := make(map[primitive.ObjectID]bool)
	for _, id := range ids {
		if p, ok := cached[id.Hex()]; ok {
			found[id] = p
			continue
		}
		if !queued[id] {
			queued[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}

	missingKeys := make([]string, len(missing))
	for i, id := range missing {
		missingKeys[i] = id.Hex()
	}
	versions, cacheable := l.versions(ctx, missingKeys)
	versionOf := make(map[primitive.ObjectID]int64, len(missing))
	if cacheable {
		for i, id := range missing {
			versionOf[id] = versions[i]
		}
	}

	products, err := l.repo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		found[p.ID] = p
		if cacheable {
			go l.store(p, versionOf[p.ID])
		}
	}
	return found, nil
}

func (l *Lookup) Invalidate(ctx context.Context, id primitive.ObjectID) {
	if err := l.cache.Delete(ctx, id.Hex()); err != nil {
		l.logger.Warn("cache invalidate error", "product_id", id.Hex(), "error", err)
	}
}

// versions is read before the repository so a fill never outlives an
// invalidation that happened during the read.
func (l *Lookup) versions(ctx context.Context, keys []string) ([]int64, bool) {
	versions, err := l.cache.Versions(ctx, keys)
	if err != nil {
		l.logger.Warn("cache version error", "error", err)
		return nil, false
	}
	return versions, true
}

func (l *Lookup) store(product *domain.Product, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.cache.SetIfVersion(ctx, product, version)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStale):
		l.logger.Debug("skipped stale cache fill", "product_id", product.ID.Hex())
	default:
		l.logger.Warn("cache set error", "product_id", product.ID.Hex(), "error", err)
	}
}

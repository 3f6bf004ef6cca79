package cache

import (
	"context"
	"errors"

	"github.com/coffeeshop/shop/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error

	// Versions returns the invalidation counter of each id, in order. Read it
	// before loading a product and pass it to SetIfVersion.
	Versions(ctx context.Context, productIDs []string) ([]int64, error)
	// SetIfVersion stores product only if it was not invalidated since
	// version was read, otherwise it returns ErrStale.
	SetIfVersion(ctx context.Context, product *domain.Product, version int64) error

	// Delete evicts the product and bumps its version.
	Delete(ctx context.Context, productID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrStale     = errors.New("product invalidated since read")
)

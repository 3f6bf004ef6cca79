package repository

import (
	"context"

	"github.com/coffeeshop/shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartRepository is the persistence side of the cart. Loading and creating
// are separate calls so that a read which creates a cart is visible to callers.
type CartRepository interface {
	TryLoad(ctx context.Context, userID string) (*domain.Cart, error)
	CreateIfAbsent(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
}

type ProductFilter struct {
	Search   string
	MinPrice *float64
	MaxPrice *float64
	Category string
	Skip     int64
	Limit    int64
}

type ProductRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*domain.Product, error)
	Find(ctx context.Context, filter ProductFilter) ([]*domain.Product, int64, error)
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, id primitive.ObjectID, fields map[string]any) (*domain.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	// ReplaceAll returns the ids of the products it removed.
	ReplaceAll(ctx context.Context, products []*domain.Product) (removed []primitive.ObjectID, err error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

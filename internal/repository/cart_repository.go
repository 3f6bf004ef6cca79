package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCartRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *mongoCartRepository) TryLoad(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	return &cart, nil
}

// CreateIfAbsent upserts an empty cart keyed by user_id. The unique index on
// user_id guarantees a single cart per user even under concurrent first access.
func (m *mongoCartRepository) CreateIfAbsent(ctx context.Context, userID string) (*domain.Cart, error) {
	now := m.now()
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"items":      bson.A{},
			"created_at": now,
			"updated_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost the insert race, the other writer's cart is the one
			return m.TryLoad(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	return &cart, nil
}

// Save replaces the stored cart with the given state. Concurrent writers for
// the same user are not detected; the last write wins.
func (m *mongoCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = m.now()
	}

	result, err := m.collection.ReplaceOne(ctx, bson.M{"user_id": cart.UserID}, cart)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductLookup resolves products referenced by carts.
type ProductLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error)
}

// CartView is a cart with every line item expanded into product details.
type CartView struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Items         []ItemView `json:"items"`
	TotalQuantity int        `json:"totalQuantity"`
	Total         float64    `json:"total"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ItemView is one line item. Product is nil and Unavailable is set when the
// product has been removed from the catalog; such items are left out of the
// cart totals.
type ItemView struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	Product     *domain.Product `json:"product"`
	Quantity    int             `json:"quantity"`
	Price       float64         `json:"price"`
	Subtotal    float64         `json:"subtotal"`
	Unavailable bool            `json:"unavailable,omitempty"`
	AddedAt     time.Time       `json:"addedAt"`
}

type Enricher struct {
	products ProductLookup
}

func NewEnricher(products ProductLookup) *Enricher {
	return &Enricher{products: products}
}

// Enrich looks all referenced products up in one batch. Prices shown per item
// are the snapshots stored in the cart, not the current catalog prices.
func (e *Enricher) Enrich(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	view := &CartView{
		ID:        cart.ID.Hex(),
		UserID:    cart.UserID,
		Items:     make([]ItemView, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	if len(cart.Items) == 0 {
		return view, nil
	}

	products, err := e.products.FindByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range cart.Items {
		subtotal := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		iv := ItemView{
			ID:        item.ID.Hex(),
			ProductID: item.ProductID.Hex(),
			Quantity:  item.Quantity,
			Price:     item.Price,
			Subtotal:  subtotal.Round(2).InexactFloat64(),
			AddedAt:   item.AddedAt,
		}
		if p, ok := products[item.ProductID]; ok {
			iv.Product = p
			total = total.Add(subtotal)
			view.TotalQuantity += item.Quantity
		} else {
			iv.Unavailable = true
		}
		view.Items = append(view.Items, iv)
	}
	view.Total = total.Round(2).InexactFloat64()
	return view, nil
}

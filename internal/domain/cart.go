package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cart is the single cart owned by a user. A user has at most one cart and
// it holds at most one LineItem per product.
type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"userId"`
	Items     []LineItem         `bson:"items" json:"items"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// LineItem references a product by id. Price is the unit price captured when
// the product was first added and is never refreshed from the catalog.
type LineItem struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	ProductID primitive.ObjectID `bson:"product_id" json:"productId"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	AddedAt   time.Time          `bson:"added_at" json:"addedAt"`
}

// MaxQuantity caps the quantity of a single line item, merges included.
const MaxQuantity = 10000

// CheckQuantity reports whether quantity is a valid line quantity.
func CheckQuantity(quantity int) error {
	switch {
	case quantity < 1:
		return ErrInvalidQuantity
	case quantity > MaxQuantity:
		return ErrQuantityTooLarge
	}
	return nil
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ItemForProduct returns the index of the line item for productID, or -1.
func (c *Cart) ItemForProduct(productID primitive.ObjectID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) itemIndex(itemID primitive.ObjectID) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// AddProduct merges quantity into the existing line for the product or
// appends a new line priced at the product's current price. A merge that
// would pass MaxQuantity is rejected and leaves the line untouched.
func (c *Cart) AddProduct(p *Product, quantity int, now time.Time) (LineItem, error) {
	if err := CheckQuantity(quantity); err != nil {
		return LineItem{}, err
	}

	if idx := c.ItemForProduct(p.ID); idx >= 0 {
		if quantity > MaxQuantity-c.Items[idx].Quantity {
			return LineItem{}, ErrQuantityTooLarge
		}
		c.Items[idx].Quantity += quantity
		c.UpdatedAt = now
		return c.Items[idx], nil
	}

	item := LineItem{
		ID:        primitive.NewObjectIDFromTimestamp(now),
		ProductID: p.ID,
		Quantity:  quantity,
		Price:     p.Price,
		AddedAt:   now,
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	return item, nil
}

// SetQuantity sets an absolute quantity. Zero or negative values are rejected,
// they are not treated as removal.
func (c *Cart) SetQuantity(itemID primitive.ObjectID, quantity int, now time.Time) (LineItem, error) {
	if err := CheckQuantity(quantity); err != nil {
		return LineItem{}, err
	}
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return LineItem{}, ErrItemNotFound
	}
	c.Items[idx].Quantity = quantity
	c.UpdatedAt = now
	return c.Items[idx], nil
}

// RemoveItem deletes the line item, keeping the order of the others.
func (c *Cart) RemoveItem(itemID primitive.ObjectID, now time.Time) (LineItem, error) {
	idx := c.itemIndex(itemID)
	if idx < 0 {
		return LineItem{}, ErrItemNotFound
	}
	removed := c.Items[idx]
	items := make([]LineItem, 0, len(c.Items)-1)
	items = append(items, c.Items[:idx]...)
	items = append(items, c.Items[idx+1:]...)
	c.Items = items
	c.UpdatedAt = now
	return removed, nil
}

func (c *Cart) Clear(now time.Time) {
	c.Items = []LineItem{}
	c.UpdatedAt = now
}

// ProductIDs lists the distinct products referenced by the cart, in item order.
func (c *Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]LineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

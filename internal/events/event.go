package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	CartTopic    = "cart-events"
	ProductTopic = "product-events"
)

const (
	CartItemAdded   = "cart.item_added"
	CartItemUpdated = "cart.item_updated"
	CartItemRemoved = "cart.item_removed"
	CartCleared     = "cart.cleared"

	ProductCreated = "product.created"
	ProductUpdated = "product.updated"
	ProductDeleted = "product.deleted"
)

// Event is a JSON message on one of the shop topics. Key orders events of the
// same aggregate onto one partition.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Topic      string    `json:"-"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

type CartItemPayload struct {
	ItemID    string  `json:"item_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type ProductPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

func NewCartEvent(eventType, userID string, payload any) Event {
	return newEvent(CartTopic, eventType, userID, payload)
}

func NewProductEvent(eventType, productID string, payload any) Event {
	return newEvent(ProductTopic, eventType, productID, payload)
}

func newEvent(topic, eventType, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Topic:      topic,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

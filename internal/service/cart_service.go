package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/coffeeshop/shop/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/coffeeshop/shop/internal/service"

const publishTimeout = 2 * time.Second

// CartService owns the read-modify-write cycle of a user's cart. Every call
// loads the whole cart, mutates it in memory and replaces the stored document,
// so concurrent writers for the same user resolve as last writer wins.
type CartService struct {
	repo      repository.CartRepository
	products  ProductLookup
	enricher  *Enricher
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewCartService(repo repository.CartRepository, products ProductLookup, publisher events.Publisher, logger *slog.Logger) *CartService {
	return &CartService{
		repo:      repo,
		products:  products,
		enricher:  NewEnricher(products),
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
}

// ReadCart returns the user's cart, creating an empty one on first access.
func (s *CartService) ReadCart(ctx context.Context, userID string) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.ReadCart", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated("authentication required")
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, cart)
}

// AddItem merges quantity into the line for productID, or appends a new line
// priced at the product's current price.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.AddItem", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	pid, err := domain.ParseID(productID)
	if err != nil {
		return nil, invalidArgument("invalid product id")
	}
	if err := domain.CheckQuantity(quantity); err != nil {
		return nil, invalidArgument(err.Error())
	}

	product, err := s.products.FindByID(ctx, pid)
	if err != nil {
		return nil, translate("look up product", err)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := cart.AddProduct(product, quantity, s.now())
	if err != nil {
		return nil, translate("add item", err)
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, translate("save cart", err)
	}

	s.publish(ctx, events.NewCartEvent(events.CartItemAdded, userID, itemPayload(item)))
	return s.enrich(ctx, cart)
}

// UpdateItem sets the absolute quantity of a line item.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.UpdateItem", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	iid, err := domain.ParseID(itemID)
	if err != nil {
		return nil, invalidArgument("invalid item id")
	}
	if err := domain.CheckQuantity(quantity); err != nil {
		return nil, invalidArgument(err.Error())
	}

	cart, err := s.repo.TryLoad(ctx, userID)
	if err != nil {
		return nil, translate("load cart", err)
	}

	item, err := cart.SetQuantity(iid, quantity, s.now())
	if err != nil {
		return nil, translate("update item", err)
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, translate("save cart", err)
	}

	s.publish(ctx, events.NewCartEvent(events.CartItemUpdated, userID, itemPayload(item)))
	return s.enrich(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.RemoveItem", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	iid, err := domain.ParseID(itemID)
	if err != nil {
		return nil, invalidArgument("invalid item id")
	}

	cart, err := s.repo.TryLoad(ctx, userID)
	if err != nil {
		return nil, translate("load cart", err)
	}

	item, err := cart.RemoveItem(iid, s.now())
	if err != nil {
		return nil, translate("remove item", err)
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, translate("save cart", err)
	}

	s.publish(ctx, events.NewCartEvent(events.CartItemRemoved, userID, itemPayload(item)))
	return s.enrich(ctx, cart)
}

func (s *CartService) ClearCart(ctx context.Context, userID string) (view *CartView, err error) {
	ctx, span := s.startSpan(ctx, "CartService.ClearCart", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated("authentication required")
	}

	cart, err := s.repo.TryLoad(ctx, userID)
	if err != nil {
		return nil, translate("load cart", err)
	}

	cart.Clear(s.now())
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, translate("save cart", err)
	}

	s.publish(ctx, events.NewCartEvent(events.CartCleared, userID, nil))
	return s.enrich(ctx, cart)
}

// getOrCreateCart may write: a user without a cart gets an empty one stored.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.TryLoad(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return nil, translate("load cart", err)
	}

	cart, err = s.repo.CreateIfAbsent(ctx, userID)
	if err != nil {
		return nil, translate("create cart", err)
	}
	s.logger.Debug("cart created", "user_id", userID, "cart_id", cart.ID.Hex())
	return cart, nil
}

func (s *CartService) enrich(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	view, err := s.enricher.Enrich(ctx, cart)
	if err != nil {
		return nil, translate("load cart products", err)
	}
	return view, nil
}

// publish never fails the caller; the cart is already stored.
func (s *CartService) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish error", "event_type", ev.Type, "key", ev.Key, "error", err)
	}
}

func (s *CartService) startSpan(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user.id", userID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func itemPayload(item domain.LineItem) events.CartItemPayload {
	return events.CartItemPayload{
		ItemID:    item.ID.Hex(),
		ProductID: item.ProductID.Hex(),
		Quantity:  item.Quantity,
		Price:     item.Price,
	}
}

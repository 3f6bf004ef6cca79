package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/coffeeshop/shop/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// CacheInvalidator drops cached copies of a product.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id primitive.ObjectID)
}

type ProductQuery struct {
	Search   string
	MinPrice *float64
	MaxPrice *float64
	Category string
	Page     int
	Limit    int
}

// ProductPage is one page of results. PageSize is the number of products on
// this page, which is below the limit on the last page.
type ProductPage struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Products []*domain.Product `json:"products"`
}

type ProductInput struct {
	Name        string   `json:"name" validate:"required"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Weight      string   `json:"weight"`
	Description string   `json:"description" validate:"required"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"imageUrl"`
}

// ProductPatch carries the fields to change; nil fields are left as they are.
type ProductPatch struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Weight      *string  `json:"weight"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	ImageURL    *string  `json:"imageUrl"`
}

type ProductService struct {
	repo      repository.ProductRepository
	cache     CacheInvalidator
	publisher events.Publisher
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewProductService(repo repository.ProductRepository, cache CacheInvalidator, publisher events.Publisher, logger *slog.Logger) *ProductService {
	return &ProductService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
	}
}

func (s *ProductService) List(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, invalidArgument("minPrice must not exceed maxPrice")
	}

	category := strings.TrimSpace(q.Category)
	if strings.EqualFold(category, "all") {
		category = ""
	}

	filter := repository.ProductFilter{
		Search:   norm.NFC.String(strings.TrimSpace(q.Search)),
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Category: category,
		Skip:     int64((page - 1) * limit),
		Limit:    int64(limit),
	}

	products, total, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, translate("list products", err)
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return &ProductPage{Total: total, Page: page, PageSize: len(products), Products: products}, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return nil, invalidArgument("invalid product id")
	}
	product, err := s.repo.FindByID(ctx, oid)
	if err != nil {
		return nil, translate("get product", err)
	}
	return product, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	product := &domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Price:       *in.Price,
		Weight:      orDefault(in.Weight, domain.DefaultWeight),
		Description: in.Description,
		Category:    orDefault(in.Category, domain.DefaultCategory),
		ImageURL:    orDefault(in.ImageURL, domain.DefaultImageURL),
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, translate("create product", err)
	}

	s.publish(ctx, events.ProductCreated, product)
	return product, nil
}

func (s *ProductService) Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return nil, invalidArgument("invalid product id")
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, validationError(err)
	}

	fields := patch.fields()
	if len(fields) == 0 {
		return nil, invalidArgument("no fields to update")
	}

	product, err := s.repo.Update(ctx, oid, fields)
	if err != nil {
		return nil, translate("update product", err)
	}

	s.cache.Invalidate(ctx, oid)
	s.publish(ctx, events.ProductUpdated, product)
	return product, nil
}

// Delete does not touch carts holding the product; they render the line as
// unavailable.
func (s *ProductService) Delete(ctx context.Context, id string) (*domain.Product, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return nil, invalidArgument("invalid product id")
	}

	product, err := s.repo.Delete(ctx, oid)
	if err != nil {
		return nil, translate("delete product", err)
	}

	s.cache.Invalidate(ctx, oid)
	s.publish(ctx, events.ProductDeleted, product)
	return product, nil
}

// ReplaceCatalog swaps the whole catalog for products, filling defaults.
// Every removed product is evicted from the cache and announced as deleted.
func (s *ProductService) ReplaceCatalog(ctx context.Context, products []*domain.Product) (int, error) {
	for _, p := range products {
		p.Weight = orDefault(p.Weight, domain.DefaultWeight)
		p.Category = orDefault(p.Category, domain.DefaultCategory)
		p.ImageURL = orDefault(p.ImageURL, domain.DefaultImageURL)
	}
	removed, err := s.repo.ReplaceAll(ctx, products)
	for _, id := range removed {
		s.cache.Invalidate(ctx, id)
		s.publish(ctx, events.ProductDeleted, &domain.Product{ID: id})
	}
	if err != nil {
		return 0, translate("replace catalog", err)
	}

	for _, p := range products {
		s.publish(ctx, events.ProductCreated, p)
	}
	return len(products), nil
}

func (s *ProductService) publish(ctx context.Context, eventType string, p *domain.Product) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := events.NewProductEvent(eventType, p.ID.Hex(), events.ProductPayload{
		ProductID: p.ID.Hex(),
		Name:      p.Name,
		Price:     p.Price,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish error", "event_type", eventType, "product_id", p.ID.Hex(), "error", err)
	}
}

func (p ProductPatch) fields() map[string]any {
	fields := make(map[string]any)
	if p.Name != nil {
		fields["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		fields["price"] = *p.Price
	}
	if p.Weight != nil {
		fields["weight"] = *p.Weight
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Category != nil {
		fields["category"] = *p.Category
	}
	if p.ImageURL != nil {
		fields["image_url"] = *p.ImageURL
	}
	return fields
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

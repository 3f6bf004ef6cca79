package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/service"
	"github.com/go-chi/chi/v5"
)

type ProductService interface {
	List(ctx context.Context, q service.ProductQuery) (*service.ProductPage, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, in service.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id string, patch service.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) (*domain.Product, error)
}

type ProductHandler struct {
	products ProductService
	timeout  time.Duration
}

func NewProductHandler(products ProductService, timeout time.Duration) *ProductHandler {
	return &ProductHandler{products: products, timeout: timeout}
}

// List reads search, category, minPrice, maxPrice, page and limit from the
// query string.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	params := r.URL.Query()
	q := service.ProductQuery{
		Search:   params.Get("search"),
		Category: params.Get("category"),
	}

	var err error
	if q.MinPrice, err = optionalFloat(params.Get("minPrice")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "minPrice must be a number")
		return
	}
	if q.MaxPrice, err = optionalFloat(params.Get("maxPrice")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "maxPrice must be a number")
		return
	}
	if q.Page, err = optionalInt(params.Get("page")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "page must be an integer")
		return
	}
	if q.Limit, err = optionalInt(params.Get("limit")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "limit must be an integer")
		return
	}

	page, err := h.products.List(ctx, q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.products.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in service.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}

	product, err := h.products.Create(ctx, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, messageResponse{Message: "product created", Product: product})
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var patch service.ProductPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	product, err := h.products.Update(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "product updated", Product: product})
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.products.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "product deleted", Deleted: product})
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

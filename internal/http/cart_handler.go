package http

import (
	"context"
	"net/http"
	"time"

	"github.com/coffeeshop/shop/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type CartService interface {
	ReadCart(ctx context.Context, userID string) (*service.CartView, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*service.CartView, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*service.CartView, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*service.CartView, error)
	ClearCart(ctx context.Context, userID string) (*service.CartView, error)
}

type CartHandler struct {
	carts    CartService
	timeout  time.Duration
	validate *validator.Validate
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		timeout:  timeout,
		validate: validator.New(),
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  *int   `json:"quantity"`
}

type UpdateItemRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.ReadCart(ctx, userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

// AddItem defaults the quantity to 1 when the body omits it.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "productId is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(ctx, userIDFromContext(r.Context()), req.ProductID, quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "item added to cart", Cart: cart})
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "quantity is required")
		return
	}

	cart, err := h.carts.UpdateItem(ctx, userIDFromContext(r.Context()), chi.URLParam(r, "itemId"), *req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "cart item updated", Cart: cart})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, userIDFromContext(r.Context()), chi.URLParam(r, "itemId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "item removed from cart", Cart: cart})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.ClearCart(ctx, userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "cart cleared", Cart: cart})
}

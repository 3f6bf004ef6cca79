package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coffeeshop/shop/internal/auth"
	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type cartCall struct {
	op       string
	userID   string
	id       string
	quantity int
}

type mockCartService struct {
	calls []cartCall
	view  *service.CartView
	err   error
}

func (m *mockCartService) record(c cartCall) (*service.CartView, error) {
	m.calls = append(m.calls, c)
	if m.err != nil {
		return nil, m.err
	}
	if c.userID == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return m.view, nil
}

func (m *mockCartService) ReadCart(_ context.Context, userID string) (*service.CartView, error) {
	return m.record(cartCall{op: "read", userID: userID})
}

func (m *mockCartService) AddItem(_ context.Context, userID, productID string, quantity int) (*service.CartView, error) {
	return m.record(cartCall{op: "add", userID: userID, id: productID, quantity: quantity})
}

func (m *mockCartService) UpdateItem(_ context.Context, userID, itemID string, quantity int) (*service.CartView, error) {
	return m.record(cartCall{op: "update", userID: userID, id: itemID, quantity: quantity})
}

func (m *mockCartService) RemoveItem(_ context.Context, userID, itemID string) (*service.CartView, error) {
	return m.record(cartCall{op: "remove", userID: userID, id: itemID})
}

func (m *mockCartService) ClearCart(_ context.Context, userID string) (*service.CartView, error) {
	return m.record(cartCall{op: "clear", userID: userID})
}

type mockProductService struct {
	query   service.ProductQuery
	input   service.ProductInput
	patch   service.ProductPatch
	product *domain.Product
	err     error
}

func (m *mockProductService) List(_ context.Context, q service.ProductQuery) (*service.ProductPage, error) {
	m.query = q
	if m.err != nil {
		return nil, m.err
	}
	return &service.ProductPage{Total: 1, Page: 1, PageSize: 1, Products: []*domain.Product{m.product}}, nil
}

func (m *mockProductService) Get(context.Context, string) (*domain.Product, error) {
	return m.product, m.err
}

func (m *mockProductService) Create(_ context.Context, in service.ProductInput) (*domain.Product, error) {
	m.input = in
	return m.product, m.err
}

func (m *mockProductService) Update(_ context.Context, _ string, patch service.ProductPatch) (*domain.Product, error) {
	m.patch = patch
	return m.product, m.err
}

func (m *mockProductService) Delete(context.Context, string) (*domain.Product, error) {
	return m.product, m.err
}

type mockAuthService struct {
	user *domain.User
	err  error
}

func (m *mockAuthService) Authenticate(token string) (auth.Identity, error) {
	switch token {
	case "user-token":
		return auth.Identity{UserID: "user1"}, nil
	case "admin-token":
		return auth.Identity{UserID: "admin1", IsAdmin: true}, nil
	}
	return auth.Identity{}, status.Error(codes.Unauthenticated, "invalid or expired token")
}

func (m *mockAuthService) Register(_ context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.AuthResult{Token: "user-token", User: &domain.User{Name: in.Name, Email: in.Email}}, nil
}

func (m *mockAuthService) Login(context.Context, service.LoginInput) (*service.AuthResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.AuthResult{Token: "user-token", User: m.user}, nil
}

func (m *mockAuthService) Me(_ context.Context, userID string) (*domain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.User{Name: userID}, nil
}

type testServer struct {
	carts    *mockCartService
	products *mockProductService
	auth     *mockAuthService
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		carts:    &mockCartService{view: &service.CartView{UserID: "user1", Items: []service.ItemView{}}},
		products: &mockProductService{product: &domain.Product{Name: "Peru", Price: 360}},
		auth:     &mockAuthService{},
	}
	s.handler = NewRouter(RouterConfig{
		Carts:          s.carts,
		Products:       s.products,
		Auth:           s.auth,
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"http://localhost:3000"},
		ImagesDir:      t.TempDir(),
		Now:            func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return s
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

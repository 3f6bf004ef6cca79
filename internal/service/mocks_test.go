package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/coffeeshop/shop/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockCartRepository struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	creates int
	saves   int
	loadErr error
	saveErr error
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartRepository) TryLoad(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *mockCartRepository) CreateIfAbsent(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if cart, ok := m.carts[userID]; ok {
		return cart.Clone(), nil
	}
	cart := domain.NewCart(userID, time.Now())
	cart.ID = primitive.NewObjectID()
	m.carts[userID] = cart
	m.creates++
	return cart.Clone(), nil
}

func (m *mockCartRepository) Save(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.carts[cart.UserID]; !ok {
		return domain.ErrCartNotFound
	}
	m.carts[cart.UserID] = cart.Clone()
	m.saves++
	return nil
}

func (m *mockCartRepository) stored(userID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

type mockProductLookup struct {
	m        sync.RWMutex
	products map[primitive.ObjectID]*domain.Product
	err      error
	batches  int
}

func newMockProductLookup(products ...*domain.Product) *mockProductLookup {
	l := &mockProductLookup{products: make(map[primitive.ObjectID]*domain.Product)}
	for _, p := range products {
		l.put(p)
	}
	return l
}

func (l *mockProductLookup) put(p *domain.Product) {
	l.m.Lock()
	defer l.m.Unlock()
	cp := *p
	l.products[p.ID] = &cp
}

func (l *mockProductLookup) remove(id primitive.ObjectID) {
	l.m.Lock()
	defer l.m.Unlock()
	delete(l.products, id)
}

func (l *mockProductLookup) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	l.m.RLock()
	defer l.m.RUnlock()
	if l.err != nil {
		return nil, l.err
	}
	p, ok := l.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (l *mockProductLookup) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	l.m.Lock()
	defer l.m.Unlock()
	l.batches++
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[primitive.ObjectID]*domain.Product)
	for _, id := range ids {
		if p, ok := l.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type mockPublisher struct {
	m      sync.Mutex
	events []events.Event
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, ev events.Event) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) types() []string {
	p.m.Lock()
	defer p.m.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type mockProductRepository struct {
	m        sync.Mutex
	products map[primitive.ObjectID]*domain.Product
	filter   repository.ProductFilter
	err      error
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[primitive.ObjectID]*domain.Product)}
}

func (m *mockProductRepository) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, id := range ids {
		if p, err := m.FindByID(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepository) Find(_ context.Context, f repository.ProductFilter) ([]*domain.Product, int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.filter = f
	if m.err != nil {
		return nil, 0, m.err
	}
	return nil, int64(len(m.products)), nil
}

func (m *mockProductRepository) Create(_ context.Context, p *domain.Product) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	p.ID = primitive.NewObjectID()
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepository) Update(_ context.Context, id primitive.ObjectID, fields map[string]any) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if v, ok := fields["name"].(string); ok {
		p.Name = v
	}
	if v, ok := fields["price"].(float64); ok {
		p.Price = v
	}
	if v, ok := fields["image_url"].(string); ok {
		p.ImageURL = v
	}
	return p, nil
}

func (m *mockProductRepository) Delete(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	delete(m.products, id)
	return p, nil
}

func (m *mockProductRepository) ReplaceAll(_ context.Context, products []*domain.Product) ([]primitive.ObjectID, error) {
	m.m.Lock()
	defer m.m.Unlock()
	removed := make([]primitive.ObjectID, 0, len(m.products))
	for id := range m.products {
		removed = append(removed, id)
	}
	m.products = make(map[primitive.ObjectID]*domain.Product)
	for _, p := range products {
		p.ID = primitive.NewObjectID()
		m.products[p.ID] = p
	}
	return removed, nil
}

type mockInvalidator struct {
	m   sync.Mutex
	ids []primitive.ObjectID
}

func (i *mockInvalidator) Invalidate(_ context.Context, id primitive.ObjectID) {
	i.m.Lock()
	defer i.m.Unlock()
	i.ids = append(i.ids, id)
}

type mockUserRepository struct {
	m     sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) FindByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepository) Create(_ context.Context, u *domain.User) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return domain.ErrEmailTaken
	}
	u.ID = primitive.NewObjectID()
	m.users[u.Email] = u
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the Postgres schema. Transactions
// are serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	categories map[uuid.UUID]domain.Category
	products   map[uuid.UUID]domain.Product
	carts      map[uuid.UUID]domain.Cart // by user id
	items      map[uuid.UUID]domain.CartItem
	orders     map[uuid.UUID]domain.Order

	failOrderCreate error
}

func newMemStore() *memStore {
	return &memStore{
		categories: make(map[uuid.UUID]domain.Category),
		products:   make(map[uuid.UUID]domain.Product),
		carts:      make(map[uuid.UUID]domain.Cart),
		items:      make(map[uuid.UUID]domain.CartItem),
		orders:     make(map[uuid.UUID]domain.Order),
	}
}

type memSnapshot struct {
	products map[uuid.UUID]domain.Product
	items    map[uuid.UUID]domain.CartItem
	orders   map[uuid.UUID]domain.Order
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memSnapshot{
		products: make(map[uuid.UUID]domain.Product, len(s.products)),
		items:    make(map[uuid.UUID]domain.CartItem, len(s.items)),
		orders:   make(map[uuid.UUID]domain.Order, len(s.orders)),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		snap.orders[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.items = snap.items
	s.orders = snap.orders
}

func (s *memStore) WithinTx(ctx context.Context, fn func(repos repository.TxRepositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	err := fn(repository.TxRepositories{
		Products: memProducts{s},
		Carts:    memCarts{s},
		Orders:   memOrders{s},
	})
	if err != nil {
		s.restore(snap)
	}
	return err
}

func (s *memStore) addCategory(name string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{ID: uuid.New(), Name: name, Slug: Slugify(name), IsActive: true}
	s.categories[c.ID] = c
	return c
}

func (s *memStore) addProduct(categoryID uuid.UUID, name string, price int64, stock int) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := domain.Product{
		ID:         uuid.New(),
		Name:       name,
		Slug:       Slugify(name),
		Price:      decimal.NewFromInt(price),
		CategoryID: categoryID,
		Stock:      stock,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) stockOf(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) setProduct(id uuid.UUID, mutate func(p *domain.Product)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	mutate(&p)
	s.products[id] = p
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// memCategories implements repository.CategoryRepository
type memCategories struct{ s *memStore }

func (r memCategories) Create(ctx context.Context, c *domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.categories {
		if existing.Slug == c.Slug || existing.Name == c.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	r.s.categories[c.ID] = *c
	return nil
}

func (r memCategories) ListActive(ctx context.Context) ([]*domain.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Category{}
	for _, c := range r.s.categories {
		if c.IsActive {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r memCategories) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return &c, nil
}

func (r memCategories) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c.Slug == slug && c.IsActive {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

// memProducts implements repository.ProductRepository
type memProducts struct{ s *memStore }

func (r memProducts) Create(ctx context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if existing.Slug == p.Slug {
			return repository.ErrProductAlreadyExists
		}
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r memProducts) Update(ctx context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	p.UpdatedAt = time.Now()
	r.s.products[p.ID] = *p
	return nil
}

func (r memProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r memProducts) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.products {
		if p.Slug == slug && p.IsActive {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (r memProducts) filter(keep func(p domain.Product) bool) []*domain.Product {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range r.s.products {
		if p.IsActive && keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func paginate(products []*domain.Product, page, pageSize int) []*domain.Product {
	start := (page - 1) * pageSize
	if start >= len(products) {
		return []*domain.Product{}
	}
	end := start + pageSize
	if end > len(products) {
		end = len(products)
	}
	return products[start:end]
}

func (r memProducts) ListActive(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	all := r.filter(func(p domain.Product) bool { return categoryID == nil || p.CategoryID == *categoryID })
	if sortBy == "name" {
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	}
	return paginate(all, page, pageSize), len(all), nil
}

func (r memProducts) ListRelated(ctx context.Context, product *domain.Product, limit int) ([]*domain.Product, error) {
	related := r.filter(func(p domain.Product) bool { return p.CategoryID == product.CategoryID && p.ID != product.ID })
	return paginate(related, 1, limit), nil
}

func (r memProducts) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	if query == "" {
		return []*domain.Product{}, 0, nil
	}
	q := strings.ToLower(query)
	all := r.filter(func(p domain.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q)
	})
	return paginate(all, page, pageSize), len(all), nil
}

func (r memProducts) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.Stock < quantity {
		return repository.ErrInsufficientStock
	}
	p.Stock -= quantity
	r.s.products[id] = p
	return nil
}

// memCarts implements repository.CartRepository
type memCarts struct{ s *memStore }

func (r memCarts) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		cart = domain.Cart{ID: uuid.New(), UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		r.s.carts[userID] = cart
	}
	return &cart, nil
}

func (r memCarts) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return &cart, nil
}

func (r memCarts) withProduct(item domain.CartItem) domain.CartItem {
	p := r.s.products[item.ProductID]
	item.Product = &p
	return item
}

func (r memCarts) ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.CartItem{}
	for _, item := range r.s.items {
		if item.CartID == cartID {
			out = append(out, r.withProduct(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memCarts) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok || item.CartID != cartID {
		return nil, repository.ErrCartItemNotFound
	}
	item = r.withProduct(item)
	return &item, nil
}

func (r memCarts) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.items {
		if item.CartID == cartID && item.ProductID == productID {
			item.Quantity += quantity
			r.s.items[id] = item
			return &item, nil
		}
	}
	item := domain.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
	r.s.items[item.ID] = item
	return &item, nil
}

func (r memCarts) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok || item.CartID != cartID {
		return repository.ErrCartItemNotFound
	}
	item.Quantity = quantity
	r.s.items[itemID] = item
	return nil
}

func (r memCarts) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok || item.CartID != cartID {
		return repository.ErrCartItemNotFound
	}
	delete(r.s.items, itemID)
	return nil
}

func (r memCarts) RemoveLines(ctx context.Context, cartID uuid.UUID, lines []domain.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, line := range lines {
		item, ok := r.s.items[line.ID]
		if !ok || item.CartID != cartID || item.Quantity != line.Quantity {
			return repository.ErrCartChanged
		}
		delete(r.s.items, line.ID)
	}
	return nil
}

// memOrders implements repository.OrderRepository
type memOrders struct{ s *memStore }

func (r memOrders) Create(ctx context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOrderCreate != nil {
		return r.s.failOrderCreate
	}
	for _, existing := range r.s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return repository.ErrOrderNumberTaken
		}
	}
	stored := *order
	stored.Items = nil
	r.s.orders[order.ID] = stored
	return nil
}

func (r memOrders) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[item.OrderID]
	if !ok {
		return fmt.Errorf("order %s does not exist", item.OrderID)
	}
	order.Items = append(order.Items, *item)
	r.s.orders[item.OrderID] = order
	return nil
}

func (r memOrders) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok || order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return &order, nil
}

func (r memOrders) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Order{}
	for _, order := range r.s.orders {
		if order.UserID == userID {
			order := order
			out = append(out, &order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeGateway records charges and refunds
type fakeGateway struct {
	mu        sync.Mutex
	charges   []payment.ChargeRequest
	refunds   []string
	chargeErr error
	refundErr error
	// afterCharge runs once a charge succeeds, outside the lock.
	afterCharge func()
}

func (g *fakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	if g.chargeErr != nil {
		g.mu.Unlock()
		return nil, g.chargeErr
	}
	g.charges = append(g.charges, req)
	charge := &payment.Charge{
		ID:          fmt.Sprintf("ch_%d", len(g.charges)),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}
	hook := g.afterCharge
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return charge, nil
}

func (g *fakeGateway) Refund(ctx context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, chargeID)
	return nil
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges), len(g.refunds)
}

// fakeSender collects messages or fails every send
type fakeSender struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
	// release, when set, holds every send until it is closed.
	release chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, msg notification.Message) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSender) sent() []notification.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Message(nil), f.messages...)
}

var errSMTPDown = errors.New("smtp unavailable")

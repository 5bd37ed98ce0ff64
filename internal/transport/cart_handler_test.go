package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type addCall struct {
	userID, productID uuid.UUID
	quantity          int
}

type stubCartService struct {
	err     error
	adds    []addCall
	updates map[uuid.UUID]int
	removed []uuid.UUID
	summary *service.CartSummary
}

func (s *stubCartService) GetCart(ctx context.Context, userID uuid.UUID) (*service.CartSummary, error) {
	return s.summary, s.err
}

func (s *stubCartService) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.summary == nil {
		return 0, s.err
	}
	return s.summary.TotalItems, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.CartItem, error) {
	s.adds = append(s.adds, addCall{userID: userID, productID: productID, quantity: quantity})
	if s.err != nil {
		return nil, s.err
	}
	return &domain.CartItem{ID: uuid.New(), ProductID: productID, Quantity: quantity}, nil
}

func (s *stubCartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	if s.updates == nil {
		s.updates = make(map[uuid.UUID]int)
	}
	s.updates[itemID] = quantity
	return s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	s.removed = append(s.removed, itemID)
	return s.err
}

func newCartRouter(carts service.CartService, auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	NewCartHandler(carts, zap.NewNop()).RegisterRoutes(r, auth)
	return r
}

func TestCartHandler_GetCart(t *testing.T) {
	policy := domain.DefaultShippingPolicy()
	carts := &stubCartService{summary: &service.CartSummary{
		ID:         uuid.New(),
		TotalItems: 3,
		Quote:      policy.Quote(decimal.NewFromInt(1300)),
	}}
	_, auth := customer()

	w := do(t, newCartRouter(carts, auth), http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.EqualValues(t, 3, body["total_items"])
	assert.Contains(t, body, "total")

	w = do(t, newCartRouter(carts, auth), http.MethodGet, "/api/cart/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":3}`, w.Body.String())
}

func TestCartHandler_AddItem(t *testing.T) {
	carts := &stubCartService{}
	userID, auth := customer()
	productID := uuid.New()

	w := do(t, newCartRouter(carts, auth), http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: productID, Quantity: 2})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, carts.adds, 1)
	assert.Equal(t, addCall{userID: userID, productID: productID, quantity: 2}, carts.adds[0])
}

func TestCartHandler_AddItemRejectsBadPayloadsBeforeService(t *testing.T) {
	carts := &stubCartService{}
	_, auth := customer()
	router := newCartRouter(carts, auth)

	for _, body := range []string{
		fmt.Sprintf(`{"product_id":"%s","quantity":0}`, uuid.New()),
		fmt.Sprintf(`{"product_id":"%s","quantity":-3}`, uuid.New()),
		`{"product_id":"not-a-uuid","quantity":1}`,
		`{"quantity":1}`,
		`{`,
	} {
		w := do(t, router, http.MethodPost, "/api/cart/items", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, carts.adds)
}

func TestCartHandler_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("product: %w", domain.ErrOutOfStock), http.StatusConflict},
		{fmt.Errorf("product: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrInvalidQuantity, http.StatusBadRequest},
	}

	for _, tc := range cases {
		_, auth := customer()
		router := newCartRouter(&stubCartService{err: tc.err}, auth)

		w := do(t, router, http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: uuid.New(), Quantity: 1})
		assert.Equal(t, tc.want, w.Code, tc.err.Error())

		w = do(t, router, http.MethodPut, "/api/cart/items/"+uuid.NewString(), UpdateItemRequest{Quantity: 1})
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestCartHandler_UpdateAndRemove(t *testing.T) {
	carts := &stubCartService{}
	_, auth := customer()
	router := newCartRouter(carts, auth)
	itemID := uuid.New()

	w := do(t, router, http.MethodPut, "/api/cart/items/"+itemID.String(), UpdateItemRequest{Quantity: 4})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 4, carts.updates[itemID])

	w = do(t, router, http.MethodDelete, "/api/cart/items/"+itemID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []uuid.UUID{itemID}, carts.removed)

	w = do(t, router, http.MethodDelete, "/api/cart/items/42", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, carts.removed, 1)
}

func TestCartHandler_RequiresCaller(t *testing.T) {
	w := do(t, newCartRouter(&stubCartService{}, passthrough), http.MethodGet, "/api/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

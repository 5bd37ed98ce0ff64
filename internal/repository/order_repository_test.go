package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrder(userID uuid.UUID, createdAt time.Time) *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-" + uuid.NewString()[:13],
		UserID:        userID,
		Status:        domain.OrderStatusProcessing,
		PaymentStatus: domain.PaymentStatusCompleted,
		Subtotal:      decimal.NewFromInt(1300),
		ShippingCost:  decimal.Zero,
		TotalAmount:   decimal.NewFromInt(1300),
		Delivery: domain.Delivery{
			Name:       "Asha Rao",
			Phone:      "9999999999",
			Address:    "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
		},
		PaymentReference: "ch_test",
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestOrderRepository_CreateAndFindForOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testDB)
	user := createTestUser(t)
	category := createTestCategory(t)
	a := createTestProduct(t, category.ID, 500, 10)
	b := createTestProduct(t, category.ID, 300, 5)

	order := newTestOrder(user.ID, time.Now())
	require.NoError(t, repo.Create(ctx, order))

	for _, line := range []struct {
		product  *domain.Product
		quantity int
	}{{a, 2}, {b, 1}} {
		require.NoError(t, repo.CreateItem(ctx, &domain.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ProductID:     line.product.ID,
			ProductName:   line.product.Name,
			Quantity:      line.quantity,
			PriceSnapshot: line.product.Price,
		}))
	}

	found, err := repo.FindByIDForUser(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
	assert.Equal(t, domain.OrderStatusProcessing, found.Status)
	assert.Equal(t, order.Delivery, found.Delivery)
	require.Len(t, found.Items, 2)
	assert.True(t, found.ItemsTotal().Equal(found.TotalAmount))

	_, err = repo.FindByIDForUser(ctx, order.ID, createTestUser(t).ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepository_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testDB)
	user := createTestUser(t)
	product := createTestProduct(t, createTestCategory(t).ID, 100, 10)

	base := time.Now().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := newTestOrder(user.ID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, order))
		require.NoError(t, repo.CreateItem(ctx, &domain.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Quantity:      i + 1,
			PriceSnapshot: product.Price,
		}))
		ids = append(ids, order.ID)
	}

	orders, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)

	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[0], orders[2].ID)
	assert.Equal(t, 3, orders[0].Items[0].Quantity)

	empty, err := repo.ListByUser(ctx, createTestUser(t).ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOrderRepository_DuplicateOrderNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testDB)
	user := createTestUser(t)

	order := newTestOrder(user.ID, time.Now())
	require.NoError(t, repo.Create(ctx, order))

	clash := newTestOrder(user.ID, time.Now())
	clash.OrderNumber = order.OrderNumber
	assert.ErrorIs(t, repo.Create(ctx, clash), ErrOrderNumberTaken)
}

func TestTxManager_RollsBackEverythingOnError(t *testing.T) {
	ctx := context.Background()
	tm := NewTxManager(testDB, zap.NewNop())
	user := createTestUser(t)
	product := createTestProduct(t, createTestCategory(t).ID, 100, 3)

	carts := NewCartRepository(testDB)
	cart, err := carts.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)
	lines, err := carts.ListItems(ctx, cart.ID)
	require.NoError(t, err)

	order := newTestOrder(user.ID, time.Now())
	boom := errors.New("boom")

	err = tm.WithinTx(ctx, func(repos TxRepositories) error {
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		if err := repos.Products.DecrementStock(ctx, product.ID, 2); err != nil {
			return err
		}
		if err := repos.Carts.RemoveLines(ctx, cart.ID, lines); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewOrderRepository(testDB).FindByIDForUser(ctx, order.ID, user.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	after, err := NewProductRepository(testDB).FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)

	items, err := carts.ListItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestTxManager_Commits(t *testing.T) {
	ctx := context.Background()
	tm := NewTxManager(testDB, zap.NewNop())
	user := createTestUser(t)
	order := newTestOrder(user.ID, time.Now())

	require.NoError(t, tm.WithinTx(ctx, func(repos TxRepositories) error {
		return repos.Orders.Create(ctx, order)
	}))

	_, err := NewOrderRepository(testDB).FindByIDForUser(ctx, order.ID, user.ID)
	assert.NoError(t, err)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNumberTaken = errors.New("order number already exists")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	CreateItem(ctx context.Context, item *domain.OrderItem) error
	// FindByIDForUser returns the order only when it belongs to userID.
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error)
	// ListByUser returns the user's orders with items, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
}

type orderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `o.id, o.order_number, o.user_id, o.status, o.payment_status,
	o.subtotal, o.shipping_cost, o.total_amount,
	o.delivery_name, o.delivery_phone, o.delivery_address, o.delivery_city,
	o.delivery_state, o.delivery_postal_code, o.payment_reference,
	o.created_at, o.updated_at`

// Create inserts the order header; items are inserted with CreateItem
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, order_number, user_id, status, payment_status,
			subtotal, shipping_cost, total_amount,
			delivery_name, delivery_phone, delivery_address, delivery_city,
			delivery_state, delivery_postal_code, payment_reference,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.ShippingCost,
		order.TotalAmount,
		order.Delivery.Name,
		order.Delivery.Phone,
		order.Delivery.Address,
		order.Delivery.City,
		order.Delivery.State,
		order.Delivery.PostalCode,
		order.PaymentReference,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// CreateItem inserts one order line with its price snapshot
func (r *orderRepository) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		item.ID,
		item.OrderID,
		item.ProductID,
		item.ProductName,
		item.Quantity,
		item.PriceSnapshot,
	)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}

	return nil
}

// FindByIDForUser retrieves an order and its items scoped to the owner
func (r *orderRepository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 AND o.user_id = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, product_name, quantity, price_snapshot
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name, id
	`

	rows, err := r.db.QueryContext(ctx, itemsQuery, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.PriceSnapshot,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return order, nil
}

// ListByUser retrieves the user's orders and their items in one query
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `,
		       oi.id, oi.product_id, oi.product_name, oi.quantity, oi.price_snapshot
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id, oi.product_name
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	var current *domain.Order

	for rows.Next() {
		order := &domain.Order{}
		var (
			itemID, productID uuid.NullUUID
			productName       sql.NullString
			quantity          sql.NullInt64
			price             decimal.NullDecimal
		)

		if err := rows.Scan(append(orderScanTargets(order),
			&itemID, &productID, &productName, &quantity, &price)...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		if current == nil || current.ID != order.ID {
			current = order
			current.Items = []domain.OrderItem{}
			orders = append(orders, current)
		}

		if itemID.Valid {
			current.Items = append(current.Items, domain.OrderItem{
				ID:            itemID.UUID,
				OrderID:       current.ID,
				ProductID:     productID.UUID,
				ProductName:   productName.String,
				Quantity:      int(quantity.Int64),
				PriceSnapshot: price.Decimal,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func orderScanTargets(order *domain.Order) []interface{} {
	return []interface{}{
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.Subtotal,
		&order.ShippingCost,
		&order.TotalAmount,
		&order.Delivery.Name,
		&order.Delivery.Phone,
		&order.Delivery.Address,
		&order.Delivery.City,
		&order.Delivery.State,
		&order.Delivery.PostalCode,
		&order.PaymentReference,
		&order.CreatedAt,
		&order.UpdatedAt,
	}
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{Items: []domain.OrderItem{}}
	if err := row.Scan(orderScanTargets(order)...); err != nil {
		return nil, err
	}
	return order, nil
}

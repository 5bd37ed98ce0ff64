package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment lifecycle tag
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus tracks the charge outcome for an order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Delivery is the address snapshot copied onto an order at checkout
type Delivery struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// Complete reports whether every delivery field is filled in.
func (d Delivery) Complete() bool {
	for _, field := range []string{d.Name, d.Phone, d.Address, d.City, d.State, d.PostalCode} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Order is the immutable record of a completed purchase
type Order struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	OrderNumber      string          `json:"order_number" db:"order_number"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	Status           OrderStatus     `json:"status" db:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status" db:"payment_status"`
	Subtotal         decimal.Decimal `json:"subtotal" db:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	Delivery         Delivery        `json:"delivery"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderItem captures a purchased product at its price at purchase time
type OrderItem struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderID       uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID     uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName   string          `json:"product_name" db:"product_name"`
	Quantity      int             `json:"quantity" db:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot" db:"price_snapshot"`
}

// Total is quantity times the price snapshot.
func (i OrderItem) Total() decimal.Decimal {
	return i.PriceSnapshot.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal sums the order's line totals.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Total())
	}
	return total
}

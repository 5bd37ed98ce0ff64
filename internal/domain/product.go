package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CategoryID  uuid.UUID       `json:"category_id" db:"category_id"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	Stock       int             `json:"stock" db:"stock"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// InStock reports whether the product can be sold at all.
func (p *Product) InStock() bool {
	return p.IsActive && p.Stock > 0
}

// CanFulfil reports whether quantity units can be sold right now.
func (p *Product) CanFulfil(quantity int) bool {
	return p.IsActive && quantity <= p.Stock
}

// Category represents a product category
type Category struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	Description  string    `json:"description" db:"description"`
	DisplayOrder int       `json:"display_order" db:"display_order"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrCartChanged      = errors.New("cart lines changed since they were read")
)

// CartRepository defines the interface for cart data access
type CartRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*domain.CartItem, error)
	// AddItem inserts a line or increments the quantity of an existing one.
	AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
	// RemoveLines deletes exactly the given lines as they were read. Any line
	// that is gone or has a different quantity yields ErrCartChanged.
	RemoveLines(ctx context.Context, cartID uuid.UUID, lines []domain.CartItem) error
}

type cartRepository struct {
	db DBTX
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db DBTX) CartRepository {
	return &cartRepository{db: db}
}

// GetOrCreate returns the user's cart, creating it on first use
func (r *cartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	query := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at, updated_at
	`

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, uuid.New(), userID, time.Now()).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	return cart, nil
}

// FindByUserID retrieves the user's cart without creating one
func (r *cartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	return cart, nil
}

const cartItemSelect = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
	       p.id, p.name, p.slug, p.description, p.price, p.category_id, p.image_url,
	       p.stock, p.is_active, p.created_at, p.updated_at
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
`

// ListItems returns the cart lines joined with their live product rows
func (r *cartRepository) ListItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := cartItemSelect + ` WHERE ci.cart_id = $1 ORDER BY ci.created_at ASC, ci.id`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// FindItem retrieves a line that belongs to cartID
func (r *cartRepository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*domain.CartItem, error) {
	query := cartItemSelect + ` WHERE ci.cart_id = $1 AND ci.id = $2`

	item, err := scanCartItem(r.db.QueryRowContext(ctx, query, cartID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}

	return item, nil
}

// AddItem inserts a new line or adds quantity to the existing one
func (r *cartRepository) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*domain.CartItem, error) {
	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, created_at, updated_at
	`

	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, query, uuid.New(), cartID, productID, quantity, time.Now()).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return item, nil
}

// UpdateItemQuantity overwrites the quantity of a line in cartID
func (r *cartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	query := `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, cartID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	return requireAffected(result, ErrCartItemNotFound)
}

// RemoveItem deletes a line in cartID
func (r *cartRepository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, cartID, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	return requireAffected(result, ErrCartItemNotFound)
}

// RemoveLines deletes the checked-out lines one by one. Inside a
// transaction the first DELETE takes the row lock, so a concurrent checkout
// of the same lines waits and then finds nothing to delete.
func (r *cartRepository) RemoveLines(ctx context.Context, cartID uuid.UUID, lines []domain.CartItem) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2 AND quantity = $3`

	for _, line := range lines {
		result, err := r.db.ExecContext(ctx, query, cartID, line.ID, line.Quantity)
		if err != nil {
			return fmt.Errorf("failed to remove cart line: %w", err)
		}
		if err := requireAffected(result, ErrCartChanged); err != nil {
			return err
		}
	}

	return nil
}

func scanCartItem(row rowScanner) (*domain.CartItem, error) {
	item := &domain.CartItem{Product: &domain.Product{}}
	p := item.Product

	err := row.Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.Price,
		&p.CategoryID,
		&p.ImageURL,
		&p.Stock,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return item, nil
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

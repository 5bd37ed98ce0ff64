package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSummary is the cart page: live lines plus a price preview
type CartSummary struct {
	ID         uuid.UUID         `json:"id"`
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	domain.Quote
}

// CartService manages the per-user cart. Stock checks here are advisory;
// nothing is reserved until checkout.
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartSummary, error)
	ItemCount(ctx context.Context, userID uuid.UUID) (int, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.CartItem, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
}

type cartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	shipping domain.ShippingPolicy
	logger   *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	shipping domain.ShippingPolicy,
	logger *zap.Logger,
) CartService {
	return &cartService{
		carts:    carts,
		products: products,
		shipping: shipping,
		logger:   logger,
	}
}

func (s *cartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartSummary, error) {
	cart, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	items, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items = items

	return &CartSummary{
		ID:         cart.ID,
		Items:      cart.Items,
		TotalItems: cart.TotalItems(),
		Quote:      s.shipping.Quote(cart.Subtotal()),
	}, nil
}

// ItemCount is the badge number: total units across lines, zero without a cart
func (s *cartService) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	cart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load cart: %w", err)
	}

	items, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items = items

	return cart.TotalItems(), nil
}

// AddItem checks only the requested quantity against stock; an existing
// line is incremented.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.CartItem, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	if !product.InStock() || !product.CanFulfil(quantity) {
		return nil, domain.ErrOutOfStock
	}

	cart, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	item, err := s.carts.AddItem(ctx, cart.ID, product.ID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	item.Product = product

	s.logger.Debug("Cart item added",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", item.Quantity),
	)
	return item, nil
}

// UpdateItem overwrites a line's quantity; it must be between 1 and stock
func (s *cartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	cart, item, err := s.findOwnedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}

	if quantity <= 0 || item.Product == nil || quantity > item.Product.Stock {
		return domain.ErrInvalidQuantity
	}

	if err := s.carts.UpdateItemQuantity(ctx, cart.ID, itemID, quantity); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := s.carts.RemoveItem(ctx, cart.ID, itemID); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}

func (s *cartService) findOwnedItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, *domain.CartItem, error) {
	cart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, nil, fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to load cart: %w", err)
	}

	item, err := s.carts.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			return nil, nil, fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to load cart item: %w", err)
	}

	return cart, item, nil
}

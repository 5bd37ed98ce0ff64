package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// OrderService exposes a customer's own order history
type OrderService interface {
	ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
}

type orderService struct {
	orders repository.OrderRepository
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orders repository.OrderRepository) OrderService {
	return &orderService{orders: orders}
}

// ListOrders returns the user's orders, newest first
func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns ErrNotFound both for missing orders and orders owned by
// someone else.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

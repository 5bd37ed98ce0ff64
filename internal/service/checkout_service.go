package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const orderNumberAttempts = 3

// CheckoutRequest is what the customer submits on the checkout form. Blank
// delivery fields are taken from the customer's profile.
type CheckoutRequest struct {
	Delivery     domain.Delivery
	PaymentToken string
}

// CheckoutConfig holds the knobs of the order placement workflow
type CheckoutConfig struct {
	Currency      string
	NotifyFrom    string
	NotifyTimeout time.Duration
	RefundTimeout time.Duration
}

// CheckoutService turns a cart into a paid order
type CheckoutService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*domain.Order, error)
	// Drain waits for confirmations still being sent, or until ctx is done.
	Drain(ctx context.Context) error
}

type checkoutService struct {
	users    repository.UserRepository
	carts    repository.CartRepository
	tx       repository.TxManager
	gateway  payment.Gateway
	notifier notification.Sender
	shipping domain.ShippingPolicy
	cfg      CheckoutConfig
	logger   *zap.Logger
	now      func() time.Time
	pending  sync.WaitGroup
}

// NewCheckoutService creates a new instance of CheckoutService
func NewCheckoutService(
	users repository.UserRepository,
	carts repository.CartRepository,
	tx repository.TxManager,
	gateway payment.Gateway,
	notifier notification.Sender,
	shipping domain.ShippingPolicy,
	cfg CheckoutConfig,
	logger *zap.Logger,
) CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.RefundTimeout <= 0 {
		cfg.RefundTimeout = 15 * time.Second
	}
	return &checkoutService{
		users:    users,
		carts:    carts,
		tx:       tx,
		gateway:  gateway,
		notifier: notifier,
		shipping: shipping,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// PlaceOrder validates the cart, charges the customer, and records the
// order. The charge happens before the transaction and is refunded if the
// transaction cannot commit. The confirmation email never fails the order.
func (s *checkoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*domain.Order, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	delivery := deliveryFor(user, req.Delivery)
	if !delivery.Complete() {
		return nil, fmt.Errorf("%w: delivery name, phone, address, city, state and postal code are required", ErrInvalidInput)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := validateLines(cart.Items); err != nil {
		return nil, err
	}

	quote := s.shipping.Quote(cart.Subtotal())
	orderID := uuid.New()

	logger := s.logger.With(
		zap.String("user_id", userID.String()),
		zap.String("order_id", orderID.String()),
	)

	charge, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		AmountMinor:    domain.MinorUnits(quote.Total),
		Currency:       s.cfg.Currency,
		Token:          req.PaymentToken,
		Description:    "Order for " + user.Email,
		IdempotencyKey: orderID.String(),
	})
	if err != nil {
		logger.Warn("Payment failed", zap.String("total", quote.Total.StringFixed(2)), zap.Error(err))
		if errors.Is(err, payment.ErrCardDeclined) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
		}
		return nil, fmt.Errorf("%w: payment provider error: %v", domain.ErrPaymentFailed, err)
	}

	order := s.buildOrder(orderID, user.ID, cart, quote, delivery, charge.ID)

	if err := s.record(ctx, order, cart); err != nil {
		logger.Error("Order could not be recorded after payment",
			zap.String("payment_reference", charge.ID),
			zap.Error(err),
		)
		s.refund(ctx, logger, charge.ID)
		return nil, err
	}

	logger.Info("Order placed",
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(order.Items)),
		zap.String("payment_reference", charge.ID),
	)

	s.sendConfirmation(ctx, logger, user, order)

	return order, nil
}

func (s *checkoutService) loadCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, domain.ErrEmptyCart
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	items, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items = items

	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	return cart, nil
}

// deliveryFor fills blank delivery fields from the user's profile
func deliveryFor(user *domain.User, d domain.Delivery) domain.Delivery {
	fill := func(field *string, fallback string) {
		if strings.TrimSpace(*field) == "" {
			*field = strings.TrimSpace(fallback)
		}
	}
	fill(&d.Name, user.FirstName+" "+user.LastName)
	fill(&d.Phone, user.PhoneNumber)
	fill(&d.Address, user.Address)
	fill(&d.City, user.City)
	fill(&d.State, user.State)
	fill(&d.PostalCode, user.PostalCode)
	return d
}

func validateLines(items []domain.CartItem) error {
	for _, item := range items {
		if item.Product == nil || !item.Product.CanFulfil(item.Quantity) {
			name := item.ProductID.String()
			if item.Product != nil {
				name = item.Product.Name
			}
			return fmt.Errorf("%w: %s", domain.ErrOutOfStock, name)
		}
	}
	return nil
}

func (s *checkoutService) buildOrder(
	id, userID uuid.UUID,
	cart *domain.Cart,
	quote domain.Quote,
	delivery domain.Delivery,
	paymentRef string,
) *domain.Order {
	now := s.now()
	order := &domain.Order{
		ID:               id,
		UserID:           userID,
		Status:           domain.OrderStatusProcessing,
		PaymentStatus:    domain.PaymentStatusCompleted,
		Subtotal:         quote.Subtotal,
		ShippingCost:     quote.Shipping,
		TotalAmount:      quote.Total,
		Delivery:         delivery,
		PaymentReference: paymentRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, line := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:            uuid.New(),
			OrderID:       id,
			ProductID:     line.ProductID,
			ProductName:   line.Product.Name,
			Quantity:      line.Quantity,
			PriceSnapshot: line.Product.Price,
		})
	}
	return order
}

// record removes the checked-out cart lines and writes the order, its
// items and the stock decrements in one transaction. An order-number
// collision is retried with a fresh number.
func (s *checkoutService) record(ctx context.Context, order *domain.Order, cart *domain.Cart) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = NewOrderNumber(s.now())

		err = s.tx.WithinTx(ctx, func(repos repository.TxRepositories) error {
			// Claim the cart lines first: a second checkout of the same
			// cart blocks here and then fails instead of ordering twice.
			if err := repos.Carts.RemoveLines(ctx, cart.ID, cart.Items); err != nil {
				if errors.Is(err, repository.ErrCartChanged) {
					return domain.ErrCartChanged
				}
				return err
			}

			if err := repos.Orders.Create(ctx, order); err != nil {
				return err
			}

			for i := range order.Items {
				item := &order.Items[i]
				if err := repos.Orders.CreateItem(ctx, item); err != nil {
					return err
				}
				if err := repos.Products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					if errors.Is(err, repository.ErrInsufficientStock) {
						return fmt.Errorf("%w: %s", domain.ErrConcurrentStockConflict, item.ProductName)
					}
					return err
				}
			}

			return nil
		})
		if !errors.Is(err, repository.ErrOrderNumberTaken) {
			break
		}
	}

	if err != nil && !errors.Is(err, domain.ErrConcurrentStockConflict) && !errors.Is(err, domain.ErrCartChanged) {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return err
}

func (s *checkoutService) refund(ctx context.Context, logger *zap.Logger, chargeID string) {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefundTimeout)
	defer cancel()

	if err := s.gateway.Refund(refundCtx, chargeID); err != nil {
		logger.Error("Refund failed, manual reconciliation required",
			zap.String("payment_reference", chargeID),
			zap.Error(err),
		)
		return
	}
	logger.Info("Payment refunded", zap.String("payment_reference", chargeID))
}

// sendConfirmation publishes the confirmation in the background under its
// own timeout. Drain waits for it.
func (s *checkoutService) sendConfirmation(ctx context.Context, logger *zap.Logger, user *domain.User, order *domain.Order) {
	if s.notifier == nil {
		return
	}

	msg := notification.Message{
		From:    s.cfg.NotifyFrom,
		To:      user.Email,
		Subject: "Order Confirmation - " + order.OrderNumber,
		Body: fmt.Sprintf(
			"Thank you for your order! Your order number is %s. Total amount: ₹%s",
			order.OrderNumber, order.TotalAmount.StringFixed(2),
		),
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()

		if err := s.notifier.Send(notifyCtx, msg); err != nil {
			logger.Warn("Order confirmation not sent",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err),
			)
		}
	}()
}

func (s *checkoutService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewOrderNumber formats ORD-YYYYMMDD-XXXXXXXX from the date and 8 random
// hex characters.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}

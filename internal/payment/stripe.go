package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a Stripe call when StripeConfig.Timeout is unset
const DefaultTimeout = 15 * time.Second

// StripeConfig configures the Stripe gateway
type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint; empty means api.stripe.com.
	BaseURL string
}

// StripeGateway charges cards through the Stripe Charges API
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
	logger  *zap.Logger
}

// NewStripeGateway builds a gateway bound to one secret key. Network
// retries are disabled so a charge is attempted at most once.
func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Sugar(),
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	return &StripeGateway{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Charge creates a charge for req.AmountMinor against the client token
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		Source:      &stripe.PaymentSourceSourceParams{Token: stripe.String(req.Token)},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	ch, err := g.api.Charges.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			g.logger.Info("Card declined",
				zap.String("code", string(stripeErr.Code)),
				zap.String("decline_code", string(stripeErr.DeclineCode)),
			)
			return nil, fmt.Errorf("%w: %s", ErrCardDeclined, stripeErr.Msg)
		}
		return nil, fmt.Errorf("failed to create stripe charge: %w", err)
	}

	return &Charge{
		ID:          ch.ID,
		AmountMinor: ch.Amount,
		Currency:    string(ch.Currency),
	}, nil
}

// Refund returns the full amount of a charge
func (g *StripeGateway) Refund(ctx context.Context, chargeID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{Charge: stripe.String(chargeID)}
	params.Context = ctx

	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("failed to refund stripe charge %s: %w", chargeID, err)
	}

	return nil
}

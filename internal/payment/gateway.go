// Package payment adapts external payment providers to the checkout flow.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrCardDeclined is returned when the provider rejects the card or token.
	ErrCardDeclined = errors.New("card declined")
)

// ChargeRequest describes a one-off charge
type ChargeRequest struct {
	AmountMinor    int64 // amount in the currency's minor unit (paise, cents)
	Currency       string
	Token          string
	Description    string
	IdempotencyKey string
}

// Charge is a successful provider charge
type Charge struct {
	ID          string
	AmountMinor int64
	Currency    string
}

// Gateway charges and refunds through an external provider.
// Implementations must not retry charges.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Refund(ctx context.Context, chargeID string) error
}

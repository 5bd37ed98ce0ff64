package domain

import "github.com/shopspring/decimal"

// ShippingPolicy charges a flat fee below a free-shipping threshold.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// DefaultShippingPolicy is free shipping from 999, otherwise 50.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeThreshold: decimal.NewFromInt(999),
		FlatFee:       decimal.NewFromInt(50),
	}
}

// Quote is the price breakdown shown before and charged at checkout
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Shipping returns the shipping cost for a subtotal.
func (p ShippingPolicy) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// Quote prices a subtotal.
func (p ShippingPolicy) Quote(subtotal decimal.Decimal) Quote {
	shipping := p.Shipping(subtotal)
	return Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}

// MinorUnits converts an amount to the gateway's integer minor-unit
// representation (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

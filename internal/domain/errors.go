package domain

import "errors"

// Errors surfaced by the storefront services. Each is recovered at the
// request boundary and mapped to a user-visible message.
var (
	ErrOutOfStock              = errors.New("product is out of stock or insufficient quantity")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrPaymentFailed           = errors.New("payment failed")
	ErrNotFound                = errors.New("not found")
	ErrConcurrentStockConflict = errors.New("stock changed while placing the order")
	ErrCartChanged             = errors.New("cart changed while placing the order")
)

package domain

import "errors"

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidID       = errors.New("invalid_order_id")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrEmptyOrder      = errors.New("empty_order")
)

package domain

import (
	"github.com/allisson/possync/internal/errors"
)

// Sale-specific error definitions.
var (
	ErrSaleNotFound = errors.Wrap(errors.ErrNotFound, "sale not found")

	ErrMissingTerminalID = errors.Wrap(errors.ErrInvalidInput, "terminal id is required")
	ErrMissingEmployeeID = errors.Wrap(errors.ErrInvalidInput, "employee id is required")
	ErrNoItems           = errors.Wrap(errors.ErrInvalidInput, "a sale needs at least one item")
	ErrInvalidItem       = errors.Wrap(errors.ErrInvalidInput, "item has an empty sku, non-positive quantity, or negative price")
	ErrSubtotalMismatch  = errors.Wrap(errors.ErrInvalidInput, "subtotal does not match the item totals")
	ErrTotalMismatch     = errors.Wrap(errors.ErrInvalidInput, "total does not equal subtotal plus tax")
	ErrNoPayments        = errors.Wrap(errors.ErrInvalidInput, "a sale needs at least one payment")
	ErrInvalidPayment    = errors.Wrap(errors.ErrInvalidInput, "payment has an unknown method or non-positive amount")
	ErrPaymentMismatch   = errors.Wrap(errors.ErrInvalidInput, "payments do not add up to the sale total")
)

// Package domain defines the sale entities captured at the terminal.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod identifies how a sale was paid.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodMobile PaymentMethod = "mobile"
)

// Valid reports whether the payment method is known.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobile:
		return true
	}
	return false
}

// SaleItem is one line of a sale. Items are stored as a JSON document on the
// sale row; they are never updated after the sale is recorded.
type SaleItem struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// TotalCents returns the line total.
func (i SaleItem) TotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// Payment is one tender applied to a sale.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	SaleID      uuid.UUID     `json:"sale_id"`
	Method      PaymentMethod `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Sale is a completed transaction recorded at the terminal. All monetary
// values are integer cents.
type Sale struct {
	ID            uuid.UUID  `json:"id"`
	TerminalID    string     `json:"terminal_id"`
	EmployeeID    string     `json:"employee_id"`
	CustomerID    *string    `json:"customer_id"`
	Items         []SaleItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	CreatedAt     time.Time  `json:"created_at"`
	Payments      []Payment  `json:"payments"`
}

// PaidCents returns the sum of all payments.
func (s *Sale) PaidCents() int64 {
	var total int64
	for _, payment := range s.Payments {
		total += payment.AmountCents
	}
	return total
}

// Validate checks the sale's internal consistency.
func (s *Sale) Validate() error {
	if s.TerminalID == "" {
		return ErrMissingTerminalID
	}
	if s.EmployeeID == "" {
		return ErrMissingEmployeeID
	}
	if len(s.Items) == 0 {
		return ErrNoItems
	}
	var subtotal int64
	for _, item := range s.Items {
		if item.SKU == "" || item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return ErrInvalidItem
		}
		subtotal += item.TotalCents()
	}
	if subtotal != s.SubtotalCents {
		return ErrSubtotalMismatch
	}
	if s.SubtotalCents+s.TaxCents != s.TotalCents {
		return ErrTotalMismatch
	}
	if len(s.Payments) == 0 {
		return ErrNoPayments
	}
	for _, payment := range s.Payments {
		if !payment.Method.Valid() || payment.AmountCents <= 0 {
			return ErrInvalidPayment
		}
	}
	if s.PaidCents() != s.TotalCents {
		return ErrPaymentMismatch
	}
	return nil
}

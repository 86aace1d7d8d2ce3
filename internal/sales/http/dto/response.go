package dto

import (
	"time"
)

// SaleItemResponse represents one line of a sale in API responses.
type SaleItemResponse struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// PaymentResponse represents one tender in API responses.
type PaymentResponse struct {
	ID          string `json:"id"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

// SaleResponse represents a sale in API responses.
type SaleResponse struct {
	ID            string             `json:"id"`
	TerminalID    string             `json:"terminal_id"`
	EmployeeID    string             `json:"employee_id"`
	CustomerID    *string            `json:"customer_id,omitempty"`
	Items         []SaleItemResponse `json:"items"`
	SubtotalCents int64              `json:"subtotal_cents"`
	TaxCents      int64              `json:"tax_cents"`
	TotalCents    int64              `json:"total_cents"`
	CreatedAt     time.Time          `json:"created_at"`
	Payments      []PaymentResponse  `json:"payments"`
}

// SaleListResponse represents a list of sales in API responses.
type SaleListResponse struct {
	Sales []SaleResponse `json:"sales"`
}

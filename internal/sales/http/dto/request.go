// Package dto provides data transfer objects for the sales HTTP layer.
package dto

import (
	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/possync/internal/validation"
)

// SaleItemRequest represents one line of a sale in the API request.
type SaleItemRequest struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Validate validates the SaleItemRequest.
func (r SaleItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SKU,
			validation.Required.Error("sku is required"),
			appValidation.NotBlank,
		),
		validation.Field(&r.Quantity,
			validation.Required.Error("quantity is required"),
			validation.Min(1).Error("quantity must be at least 1"),
		),
		validation.Field(&r.UnitPriceCents,
			validation.Min(int64(0)).Error("unit price must not be negative"),
		),
	)
}

// PaymentRequest represents one tender in the API request.
type PaymentRequest struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

// Validate validates the PaymentRequest.
func (r PaymentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Method,
			validation.Required.Error("method is required"),
			validation.In("cash", "card", "mobile").Error("method must be cash, card, or mobile"),
		),
		validation.Field(&r.AmountCents,
			validation.Required.Error("amount is required"),
			validation.Min(int64(1)).Error("amount must be positive"),
		),
	)
}

// RecordSaleRequest represents the API request for recording a sale.
type RecordSaleRequest struct {
	EmployeeID string            `json:"employee_id"`
	CustomerID *string           `json:"customer_id"`
	Items      []SaleItemRequest `json:"items"`
	TaxCents   int64             `json:"tax_cents"`
	Payments   []PaymentRequest  `json:"payments"`
}

// Validate validates the RecordSaleRequest using the jellydator/validation library.
func (r *RecordSaleRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.EmployeeID,
			validation.Required.Error("employee id is required"),
			appValidation.NotBlank,
			validation.Length(1, 128).Error("employee id must be between 1 and 128 characters"),
		),
		validation.Field(&r.Items,
			validation.Required.Error("at least one item is required"),
		),
		validation.Field(&r.Payments,
			validation.Required.Error("at least one payment is required"),
		),
		validation.Field(&r.TaxCents,
			validation.Min(int64(0)).Error("tax must not be negative"),
		),
	)
	return appValidation.WrapValidationError(err)
}

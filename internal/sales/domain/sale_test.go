package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validSale() *Sale {
	saleID := uuid.Must(uuid.NewV7())
	return &Sale{
		ID:         saleID,
		TerminalID: "pos-001",
		EmployeeID: "emp-001",
		Items: []SaleItem{
			{SKU: "sku-001", Name: "Coffee", Quantity: 2, UnitPriceCents: 350},
			{SKU: "sku-002", Name: "Croissant", Quantity: 1, UnitPriceCents: 300},
		},
		SubtotalCents: 1000,
		TaxCents:      80,
		TotalCents:    1080,
		CreatedAt:     time.Now().UTC(),
		Payments: []Payment{
			{ID: uuid.Must(uuid.NewV7()), SaleID: saleID, Method: PaymentMethodCard, AmountCents: 1080},
		},
	}
}

func TestSale_Validate(t *testing.T) {
	assert.NoError(t, validSale().Validate())
}

func TestSale_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Sale)
		want   error
	}{
		{name: "missing terminal", mutate: func(s *Sale) { s.TerminalID = "" }, want: ErrMissingTerminalID},
		{name: "missing employee", mutate: func(s *Sale) { s.EmployeeID = "" }, want: ErrMissingEmployeeID},
		{name: "no items", mutate: func(s *Sale) { s.Items = nil }, want: ErrNoItems},
		{name: "zero quantity", mutate: func(s *Sale) { s.Items[0].Quantity = 0 }, want: ErrInvalidItem},
		{name: "subtotal mismatch", mutate: func(s *Sale) { s.SubtotalCents = 999 }, want: ErrSubtotalMismatch},
		{name: "total mismatch", mutate: func(s *Sale) { s.TotalCents = 2000 }, want: ErrTotalMismatch},
		{name: "no payments", mutate: func(s *Sale) { s.Payments = nil }, want: ErrNoPayments},
		{name: "bad method", mutate: func(s *Sale) { s.Payments[0].Method = "barter" }, want: ErrInvalidPayment},
		{name: "underpaid", mutate: func(s *Sale) { s.Payments[0].AmountCents = 500 }, want: ErrPaymentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sale := validSale()
			tt.mutate(sale)
			assert.ErrorIs(t, sale.Validate(), tt.want)
		})
	}
}

func TestSale_PaidCents(t *testing.T) {
	sale := validSale()
	sale.Payments = append(sale.Payments, Payment{Method: PaymentMethodCash, AmountCents: 500})
	assert.Equal(t, int64(1580), sale.PaidCents())
}

func TestSaleItem_TotalCents(t *testing.T) {
	item := SaleItem{Quantity: 3, UnitPriceCents: 250}
	assert.Equal(t, int64(750), item.TotalCents())
}

package dto

import (
	"github.com/allisson/possync/internal/sales/domain"
	"github.com/allisson/possync/internal/sales/usecase"
)

// ToRecordSaleInput converts a RecordSaleRequest DTO to a RecordSaleInput use case input
func ToRecordSaleInput(req RecordSaleRequest) usecase.RecordSaleInput {
	input := usecase.RecordSaleInput{
		EmployeeID: req.EmployeeID,
		CustomerID: req.CustomerID,
		TaxCents:   req.TaxCents,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, usecase.SaleItemInput{
			SKU:            item.SKU,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	for _, payment := range req.Payments {
		input.Payments = append(input.Payments, usecase.PaymentInput{
			Method:      payment.Method,
			AmountCents: payment.AmountCents,
		})
	}
	return input
}

// ToSaleResponse converts a domain Sale to a response DTO
func ToSaleResponse(sale *domain.Sale) SaleResponse {
	response := SaleResponse{
		ID:            sale.ID.String(),
		TerminalID:    sale.TerminalID,
		EmployeeID:    sale.EmployeeID,
		CustomerID:    sale.CustomerID,
		SubtotalCents: sale.SubtotalCents,
		TaxCents:      sale.TaxCents,
		TotalCents:    sale.TotalCents,
		CreatedAt:     sale.CreatedAt,
		Items:         make([]SaleItemResponse, 0, len(sale.Items)),
		Payments:      make([]PaymentResponse, 0, len(sale.Payments)),
	}
	for _, item := range sale.Items {
		response.Items = append(response.Items, SaleItemResponse{
			SKU:            item.SKU,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents(),
		})
	}
	for _, payment := range sale.Payments {
		response.Payments = append(response.Payments, PaymentResponse{
			ID:          payment.ID.String(),
			Method:      string(payment.Method),
			AmountCents: payment.AmountCents,
		})
	}
	return response
}

// ToSaleListResponse converts domain Sales to a list response DTO
func ToSaleListResponse(sales []*domain.Sale) SaleListResponse {
	response := SaleListResponse{Sales: make([]SaleResponse, 0, len(sales))}
	for _, sale := range sales {
		response.Sales = append(response.Sales, ToSaleResponse(sale))
	}
	return response
}

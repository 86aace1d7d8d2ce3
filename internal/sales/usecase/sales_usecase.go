// Package usecase implements the sale business logic and orchestrates the
// transactional outbox: every recorded sale commits its change records in the
// same local transaction.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	validation "github.com/jellydator/validation"

	"github.com/google/uuid"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	"github.com/allisson/possync/internal/sales/domain"
	appValidation "github.com/allisson/possync/internal/validation"
)

// SaleItemInput is one line of a sale being recorded.
type SaleItemInput struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// PaymentInput is one tender applied to the sale.
type PaymentInput struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

// RecordSaleInput contains the input data for recording a sale.
type RecordSaleInput struct {
	EmployeeID string          `json:"employee_id"`
	CustomerID *string         `json:"customer_id"`
	Items      []SaleItemInput `json:"items"`
	TaxCents   int64           `json:"tax_cents"`
	Payments   []PaymentInput  `json:"payments"`
}

// UseCase defines the interface for sale business logic operations
type UseCase interface {
	RecordSale(ctx context.Context, input RecordSaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListRecentSales(ctx context.Context, limit int) ([]*domain.Sale, error)
}

// SaleRepository interface defines sale repository operations
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	GetByID(ctx context.Context, id string) (*domain.Sale, error)
	ListRecent(ctx context.Context, terminalID string, limit int) ([]*domain.Sale, error)
}

// SaleUseCase handles sale-related business logic
type SaleUseCase struct {
	terminalID string
	txManager  database.TxManager
	saleRepo   SaleRepository
	outbox     outboxUsecase.Store
	clock      clock.Clock
}

// NewSaleUseCase creates a new SaleUseCase
func NewSaleUseCase(
	terminalID string,
	txManager database.TxManager,
	saleRepo SaleRepository,
	outbox outboxUsecase.Store,
	clk clock.Clock,
) UseCase {
	return &SaleUseCase{
		terminalID: terminalID,
		txManager:  txManager,
		saleRepo:   saleRepo,
		outbox:     outbox,
		clock:      clk,
	}
}

// validateRecordSaleInput validates the sale input using jellydator/validation
func (uc *SaleUseCase) validateRecordSaleInput(input RecordSaleInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.EmployeeID,
			validation.Required.Error("employee id is required"),
			appValidation.NotBlank,
			validation.Length(1, 128).Error("employee id must be between 1 and 128 characters"),
		),
		validation.Field(&input.Items,
			validation.Required.Error("at least one item is required"),
		),
		validation.Field(&input.Payments,
			validation.Required.Error("at least one payment is required"),
		),
		validation.Field(&input.TaxCents,
			validation.Min(int64(0)).Error("tax must not be negative"),
		),
	)
	return appValidation.WrapValidationError(err)
}

// RecordSale persists the sale and appends its change records in a single
// local transaction, so the sale never commits without its outbox entries.
func (uc *SaleUseCase) RecordSale(ctx context.Context, input RecordSaleInput) (*domain.Sale, error) {
	if err := uc.validateRecordSaleInput(input); err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	saleID := uuid.Must(uuid.NewV7())

	sale := &domain.Sale{
		ID:         saleID,
		TerminalID: uc.terminalID,
		EmployeeID: input.EmployeeID,
		CustomerID: input.CustomerID,
		TaxCents:   input.TaxCents,
		CreatedAt:  now,
	}
	for _, item := range input.Items {
		saleItem := domain.SaleItem{
			SKU:            item.SKU,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
		sale.Items = append(sale.Items, saleItem)
		sale.SubtotalCents += saleItem.TotalCents()
	}
	sale.TotalCents = sale.SubtotalCents + sale.TaxCents
	for _, payment := range input.Payments {
		sale.Payments = append(sale.Payments, domain.Payment{
			ID:          uuid.Must(uuid.NewV7()),
			SaleID:      saleID,
			Method:      domain.PaymentMethod(payment.Method),
			AmountCents: payment.AmountCents,
			CreatedAt:   now,
		})
	}
	if err := sale.Validate(); err != nil {
		return nil, err
	}

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.saleRepo.Create(ctx, sale); err != nil {
			return apperrors.Wrap(err, "failed to create sale")
		}
		return uc.appendChangeRecords(ctx, sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// appendChangeRecords writes one change record per remote effect of the sale:
// the transaction itself, an inventory delta per item, a loyalty update when
// a customer is attached, and one record per payment.
func (uc *SaleUseCase) appendChangeRecords(ctx context.Context, sale *domain.Sale) error {
	salePayload, err := json.Marshal(sale)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal sale payload")
	}
	if _, err := uc.outbox.Append(ctx, outboxUsecase.AppendChangeInput{
		EntityType: outboxDomain.EntityTypeTransaction,
		EntityID:   sale.ID.String(),
		Operation:  outboxDomain.OperationCreate,
		Payload:    string(salePayload),
		EmployeeID: sale.EmployeeID,
	}); err != nil {
		return err
	}

	for _, item := range sale.Items {
		payload, err := json.Marshal(map[string]any{
			"sale_id": sale.ID,
			"sku":     item.SKU,
			"delta":   -item.Quantity,
		})
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal inventory payload")
		}
		if _, err := uc.outbox.Append(ctx, outboxUsecase.AppendChangeInput{
			EntityType: outboxDomain.EntityTypeInventoryChange,
			EntityID:   item.SKU,
			Operation:  outboxDomain.OperationUpdate,
			Payload:    string(payload),
			EmployeeID: sale.EmployeeID,
		}); err != nil {
			return err
		}
	}

	if sale.CustomerID != nil {
		payload, err := json.Marshal(map[string]any{
			"sale_id":     sale.ID,
			"customer_id": *sale.CustomerID,
			"total_cents": sale.TotalCents,
		})
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal loyalty payload")
		}
		if _, err := uc.outbox.Append(ctx, outboxUsecase.AppendChangeInput{
			EntityType: outboxDomain.EntityTypeLoyaltyUpdate,
			EntityID:   *sale.CustomerID,
			Operation:  outboxDomain.OperationUpdate,
			Payload:    string(payload),
			EmployeeID: sale.EmployeeID,
		}); err != nil {
			return err
		}
	}

	for _, payment := range sale.Payments {
		payload, err := json.Marshal(payment)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal payment payload")
		}
		if _, err := uc.outbox.Append(ctx, outboxUsecase.AppendChangeInput{
			EntityType: outboxDomain.EntityTypePayment,
			EntityID:   payment.ID.String(),
			Operation:  outboxDomain.OperationCreate,
			Payload:    string(payload),
			EmployeeID: sale.EmployeeID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// GetSale retrieves a sale by its ID.
func (uc *SaleUseCase) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid sale id", apperrors.ErrInvalidInput)
	}
	return uc.saleRepo.GetByID(ctx, id)
}

// ListRecentSales retrieves the terminal's most recent sales, newest first.
func (uc *SaleUseCase) ListRecentSales(ctx context.Context, limit int) ([]*domain.Sale, error) {
	if limit <= 0 {
		limit = 20
	}
	return uc.saleRepo.ListRecent(ctx, uc.terminalID, limit)
}

package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/metrics"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	outboxRepository "github.com/allisson/possync/internal/outbox/repository"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	"github.com/allisson/possync/internal/sales/domain"
	"github.com/allisson/possync/internal/sales/repository"
	"github.com/allisson/possync/internal/testutil"
)

const testTerminalID = "pos-001"

type saleFixture struct {
	usecase UseCase
	outbox  *outboxUsecase.OutboxStore
	clock   *clock.FakeClock
}

func setupSaleUseCase(t *testing.T) *saleFixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	fakeClock := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	txManager := database.NewTxManager(db)
	outbox := outboxUsecase.NewOutboxStore(
		testTerminalID,
		10,
		txManager,
		outboxRepository.NewSQLiteChangeRecordRepository(db),
		fakeClock,
		metrics.NewNoOpSyncMetrics(),
	)
	saleUseCase := NewSaleUseCase(
		testTerminalID,
		txManager,
		repository.NewSQLiteSaleRepository(db),
		outbox,
		fakeClock,
	)
	return &saleFixture{usecase: saleUseCase, outbox: outbox, clock: fakeClock}
}

func validInput() RecordSaleInput {
	customerID := "cust-001"
	return RecordSaleInput{
		EmployeeID: "emp-001",
		CustomerID: &customerID,
		Items: []SaleItemInput{
			{SKU: "sku-001", Name: "Coffee", Quantity: 2, UnitPriceCents: 350},
			{SKU: "sku-002", Name: "Croissant", Quantity: 1, UnitPriceCents: 300},
		},
		TaxCents: 80,
		Payments: []PaymentInput{
			{Method: "card", AmountCents: 1080},
		},
	}
}

func TestSaleUseCase_RecordSale(t *testing.T) {
	fixture := setupSaleUseCase(t)
	ctx := context.Background()

	sale, err := fixture.usecase.RecordSale(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, testTerminalID, sale.TerminalID)
	assert.Equal(t, int64(1000), sale.SubtotalCents)
	assert.Equal(t, int64(1080), sale.TotalCents)
	require.Len(t, sale.Payments, 1)

	got, err := fixture.usecase.GetSale(ctx, sale.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sale.ID, got.ID)
	assert.Len(t, got.Items, 2)
	assert.Len(t, got.Payments, 1)
}

func TestSaleUseCase_RecordSaleAppendsChangeRecords(t *testing.T) {
	fixture := setupSaleUseCase(t)
	ctx := context.Background()

	sale, err := fixture.usecase.RecordSale(ctx, validInput())
	require.NoError(t, err)

	// transaction + 2 inventory changes + loyalty update + payment.
	batch, err := fixture.outbox.NextBatch(ctx, 50)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	byType := make(map[outboxDomain.EntityType][]*outboxDomain.ChangeRecord)
	for _, record := range batch {
		byType[record.EntityType] = append(byType[record.EntityType], record)
		assert.Equal(t, "emp-001", record.EmployeeID)
	}
	require.Len(t, byType[outboxDomain.EntityTypeTransaction], 1)
	assert.Equal(t, sale.ID.String(), byType[outboxDomain.EntityTypeTransaction][0].EntityID)
	assert.Len(t, byType[outboxDomain.EntityTypeInventoryChange], 2)
	require.Len(t, byType[outboxDomain.EntityTypeLoyaltyUpdate], 1)
	assert.Equal(t, "cust-001", byType[outboxDomain.EntityTypeLoyaltyUpdate][0].EntityID)
	assert.Len(t, byType[outboxDomain.EntityTypePayment], 1)

	// The transaction record precedes everything else in drain order.
	assert.Equal(t, outboxDomain.EntityTypeTransaction, batch[0].EntityType)
}

func TestSaleUseCase_RecordSaleWithoutCustomer(t *testing.T) {
	fixture := setupSaleUseCase(t)
	ctx := context.Background()

	input := validInput()
	input.CustomerID = nil
	_, err := fixture.usecase.RecordSale(ctx, input)
	require.NoError(t, err)

	batch, err := fixture.outbox.NextBatch(ctx, 50)
	require.NoError(t, err)
	// No loyalty update without a customer.
	assert.Len(t, batch, 4)
}

func TestSaleUseCase_RecordSaleValidation(t *testing.T) {
	fixture := setupSaleUseCase(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(input *RecordSaleInput)
	}{
		{name: "missing employee", mutate: func(input *RecordSaleInput) { input.EmployeeID = "" }},
		{name: "no items", mutate: func(input *RecordSaleInput) { input.Items = nil }},
		{name: "no payments", mutate: func(input *RecordSaleInput) { input.Payments = nil }},
		{name: "negative tax", mutate: func(input *RecordSaleInput) { input.TaxCents = -1 }},
		{name: "underpaid", mutate: func(input *RecordSaleInput) { input.Payments[0].AmountCents = 100 }},
		{name: "unknown method", mutate: func(input *RecordSaleInput) { input.Payments[0].Method = "barter" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)
			_, err := fixture.usecase.RecordSale(ctx, input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	// Nothing leaked into the outbox.
	depth, err := fixture.outbox.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestSaleUseCase_GetSaleNotFound(t *testing.T) {
	fixture := setupSaleUseCase(t)

	_, err := fixture.usecase.GetSale(context.Background(), "0197b7e3-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrSaleNotFound)
}

func TestSaleUseCase_GetSaleInvalidID(t *testing.T) {
	fixture := setupSaleUseCase(t)

	_, err := fixture.usecase.GetSale(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSaleUseCase_ListRecentSales(t *testing.T) {
	fixture := setupSaleUseCase(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fixture.usecase.RecordSale(ctx, validInput())
		require.NoError(t, err)
		fixture.clock.Advance(time.Minute)
	}

	sales, err := fixture.usecase.ListRecentSales(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

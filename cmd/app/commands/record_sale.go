package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/allisson/possync/internal/app"
	"github.com/allisson/possync/internal/config"
	salesUsecase "github.com/allisson/possync/internal/sales/usecase"
)

// RunRecordSale records a completed sale from a JSON document. Pass "-" to
// read the document from stdin. The sale and its change records commit in one
// local transaction, so a recorded sale is always queued for sync.
func RunRecordSale(ctx context.Context, payload string, format string) error {
	if payload == "" {
		return fmt.Errorf("sale payload is required")
	}

	if payload == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read sale from stdin: %w", err)
		}
		payload = string(data)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	saleUseCase, err := container.SaleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize sale use case: %w", err)
	}

	return recordSale(ctx, saleUseCase, payload, os.Stdout, format)
}

func recordSale(
	ctx context.Context,
	saleUseCase salesUsecase.UseCase,
	payload string,
	w io.Writer,
	format string,
) error {
	var input salesUsecase.RecordSaleInput
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		return fmt.Errorf("failed to parse sale document: %w", err)
	}

	sale, err := saleUseCase.RecordSale(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}

	if format == "json" {
		return outputJSON(w, sale)
	}

	fmt.Fprintf(w, "Recorded sale %s\n", sale.ID)
	fmt.Fprintf(w, "Subtotal: %d  Tax: %d  Total: %d\n", sale.SubtotalCents, sale.TaxCents, sale.TotalCents)
	fmt.Fprintf(w, "Items: %d  Payments: %d\n", len(sale.Items), len(sale.Payments))
	return nil
}

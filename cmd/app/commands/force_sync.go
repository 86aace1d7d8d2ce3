package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/allisson/possync/internal/app"
	"github.com/allisson/possync/internal/config"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	syncUsecase "github.com/allisson/possync/internal/sync/usecase"
)

// RunForceSync performs a one-shot drain of the outbox and reports the
// result. Stranded in flight records are reconciled first, so this is safe to
// run after a crash.
func RunForceSync(ctx context.Context, format string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	engine, err := container.Engine()
	if err != nil {
		return fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	store, err := container.OutboxStore()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	return forceSync(ctx, engine, store, os.Stdout, format)
}

func forceSync(
	ctx context.Context,
	engine *syncUsecase.Engine,
	store outboxUsecase.Store,
	w io.Writer,
	format string,
) error {
	if _, err := store.ReconcileInFlight(ctx); err != nil {
		return fmt.Errorf("failed to reconcile in flight records: %w", err)
	}

	if err := engine.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	status := engine.Status()

	if format == "json" {
		return outputJSON(w, status)
	}

	fmt.Fprintf(w, "Synced records:       %d\n", status.SuccessCount)
	fmt.Fprintf(w, "Errors:               %d\n", status.ErrorCount)
	fmt.Fprintf(w, "Remaining queue:      %d\n", status.QueueDepth)
	fmt.Fprintf(w, "Online:               %t\n", status.IsOnline)
	return nil
}

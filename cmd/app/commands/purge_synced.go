package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/allisson/possync/internal/app"
	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/config"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
)

// RunPurgeSynced deletes synced change records older than the given age.
func RunPurgeSynced(ctx context.Context, olderThan time.Duration, format string) error {
	if olderThan <= 0 {
		return fmt.Errorf("older-than must be a positive duration, got: %s", olderThan)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	store, err := container.OutboxStore()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	return purgeSynced(ctx, store, container.Clock(), olderThan, os.Stdout, format)
}

func purgeSynced(
	ctx context.Context,
	store outboxUsecase.Store,
	clk clock.Clock,
	olderThan time.Duration,
	w io.Writer,
	format string,
) error {
	cutoff := clk.Now().Add(-olderThan)

	purged, err := store.PurgeSynced(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge synced records: %w", err)
	}

	if format == "json" {
		return outputJSON(w, map[string]any{
			"purged": purged,
			"cutoff": cutoff,
		})
	}

	fmt.Fprintf(w, "Purged %d synced record(s) older than %s\n", purged, olderThan)
	return nil
}

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/allisson/possync/internal/app"
	"github.com/allisson/possync/internal/config"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
)

// RunClearDeadLetters permanently deletes every dead letter record.
// Destructive: requires the --confirm flag.
func RunClearDeadLetters(ctx context.Context, confirm bool, format string) error {
	if !confirm {
		return fmt.Errorf("clearing dead letters is destructive; re-run with --confirm")
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	store, err := container.OutboxStore()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	return clearDeadLetters(ctx, store, os.Stdout, format)
}

func clearDeadLetters(ctx context.Context, store outboxUsecase.Store, w io.Writer, format string) error {
	cleared, err := store.ClearDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear dead letters: %w", err)
	}

	if format == "json" {
		return outputJSON(w, map[string]any{"cleared": cleared})
	}

	fmt.Fprintf(w, "Deleted %d dead letter record(s)\n", cleared)
	return nil
}

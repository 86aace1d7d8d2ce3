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

// RunStatus prints the outbox queue state for the configured terminal.
func RunStatus(ctx context.Context, format string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	store, err := container.OutboxStore()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	return printStatus(ctx, store, cfg.TerminalID, os.Stdout, format)
}

func printStatus(
	ctx context.Context,
	store outboxUsecase.Store,
	terminalID string,
	w io.Writer,
	format string,
) error {
	depth, err := store.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get queue depth: %w", err)
	}

	age, err := store.OldestPendingAge(ctx)
	if err != nil {
		return fmt.Errorf("failed to get oldest pending age: %w", err)
	}

	deadLetters, err := store.DeadLetters(ctx, 500)
	if err != nil {
		return fmt.Errorf("failed to get dead letters: %w", err)
	}

	if format == "json" {
		return outputJSON(w, map[string]any{
			"terminal_id":               terminalID,
			"queue_depth":               depth,
			"oldest_pending_age_millis": age.Milliseconds(),
			"dead_letters":              len(deadLetters),
		})
	}

	fmt.Fprintf(w, "Terminal:            %s\n", terminalID)
	fmt.Fprintf(w, "Queue depth:         %d\n", depth)
	fmt.Fprintf(w, "Oldest pending age:  %s\n", age)
	fmt.Fprintf(w, "Dead letters:        %d\n", len(deadLetters))
	return nil
}

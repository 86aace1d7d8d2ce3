package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/possync/internal/app"
	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/config"
	appHTTP "github.com/allisson/possync/internal/http"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
)

// RunServer starts the terminal process: the sync engine, the health monitor,
// the synced-record janitor and the operator API. Blocks until SIGINT/SIGTERM
// or a fatal error, then shuts everything down gracefully.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting terminal",
		slog.String("version", version),
		slog.String("terminal_id", cfg.TerminalID),
	)

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	engine, err := container.Engine()
	if err != nil {
		return fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	monitor, err := container.Monitor()
	if err != nil {
		return fmt.Errorf("failed to initialize health monitor: %w", err)
	}

	// Building the orchestrator wires it into the monitor for auto recovery.
	if _, err := container.Orchestrator(); err != nil {
		return fmt.Errorf("failed to initialize recovery orchestrator: %w", err)
	}

	store, err := container.OutboxStore()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox store: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reconciled, err := engine.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	if reconciled > 0 {
		logger.Info("reconciled stranded records", slog.Int64("count", reconciled))
	}

	monitor.Run(ctx)

	go runPurgeJanitor(ctx, store, container.Clock(), cfg.SyncPurgeInterval, cfg.SyncPurgeOlderThan, logger)

	// Start servers in goroutines
	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownServers(server, metricsServer, nil)
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		return shutdownServers(server, metricsServer, err)
	}
}

// shutdownServers gracefully stops both HTTP servers, joining any errors with
// the cause that triggered the shutdown.
func shutdownServers(server *appHTTP.Server, metricsServer *appHTTP.MetricsServer, cause error) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var shutdownErrors []error
	if cause != nil {
		shutdownErrors = append(shutdownErrors, cause)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return errors.Join(shutdownErrors...)
	}
	return nil
}

// runPurgeJanitor periodically deletes synced records older than the
// retention window. Runs until the context is cancelled.
func runPurgeJanitor(
	ctx context.Context,
	store outboxUsecase.Store,
	clk clock.Clock,
	interval time.Duration,
	olderThan time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := clk.Now().Add(-olderThan)
			purged, err := store.PurgeSynced(ctx, cutoff)
			if err != nil {
				logger.Error("failed to purge synced records", slog.Any("error", err))
				continue
			}
			if purged > 0 {
				logger.Info("purged synced records",
					slog.Int64("count", purged),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

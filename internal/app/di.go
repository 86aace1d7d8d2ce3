// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/config"
	"github.com/allisson/possync/internal/database"
	healthHTTP "github.com/allisson/possync/internal/health/http"
	healthUsecase "github.com/allisson/possync/internal/health/usecase"
	"github.com/allisson/possync/internal/http"
	"github.com/allisson/possync/internal/metrics"
	outboxHTTP "github.com/allisson/possync/internal/outbox/http"
	outboxRepository "github.com/allisson/possync/internal/outbox/repository"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	recoveryHTTP "github.com/allisson/possync/internal/recovery/http"
	recoveryUsecase "github.com/allisson/possync/internal/recovery/usecase"
	salesHTTP "github.com/allisson/possync/internal/sales/http"
	salesRepository "github.com/allisson/possync/internal/sales/repository"
	salesUsecase "github.com/allisson/possync/internal/sales/usecase"
	syncHTTP "github.com/allisson/possync/internal/sync/http"
	syncService "github.com/allisson/possync/internal/sync/service"
	syncUsecase "github.com/allisson/possync/internal/sync/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB
	clock  clock.Clock

	// Managers
	txManager database.TxManager

	// Metrics
	metricsProvider *metrics.Provider
	syncMetrics     metrics.SyncMetrics

	// Repositories
	changeRecordRepo outboxUsecase.ChangeRecordRepository
	saleRepo         salesUsecase.SaleRepository

	// Services
	remoteClient syncService.RemoteClient

	// Use Cases
	outboxStore  *outboxUsecase.OutboxStore
	engine       *syncUsecase.Engine
	monitor      *healthUsecase.Monitor
	orchestrator *recoveryUsecase.Orchestrator
	saleUseCase  salesUsecase.UseCase

	// Servers and Workers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	clockInit           sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	syncMetricsInit     sync.Once
	changeRecordInit    sync.Once
	saleRepoInit        sync.Once
	remoteClientInit    sync.Once
	outboxStoreInit     sync.Once
	engineInit          sync.Once
	monitorInit         sync.Once
	orchestratorInit    sync.Once
	saleUseCaseInit     sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Clock returns the shared wall clock.
func (c *Container) Clock() clock.Clock {
	c.clockInit.Do(func() {
		c.clock = clock.New()
	})
	return c.clock
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := c.initDB()
		if err != nil {
			c.initErrors["db"] = err
			return
		}
		c.db = db
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		txManager, err := c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
			return
		}
		c.txManager = txManager
	})
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the Prometheus metrics provider.
// Returns nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// SyncMetrics returns the sync pipeline instrumentation.
// A no-op implementation is returned when metrics are disabled.
func (c *Container) SyncMetrics() (metrics.SyncMetrics, error) {
	c.syncMetricsInit.Do(func() {
		syncMetrics, err := c.initSyncMetrics()
		if err != nil {
			c.initErrors["syncMetrics"] = err
			return
		}
		c.syncMetrics = syncMetrics
	})
	if storedErr, exists := c.initErrors["syncMetrics"]; exists {
		return nil, storedErr
	}
	return c.syncMetrics, nil
}

// ChangeRecordRepository returns the change record repository instance.
func (c *Container) ChangeRecordRepository() (outboxUsecase.ChangeRecordRepository, error) {
	c.changeRecordInit.Do(func() {
		repo, err := c.initChangeRecordRepository()
		if err != nil {
			c.initErrors["changeRecordRepo"] = err
			return
		}
		c.changeRecordRepo = repo
	})
	if storedErr, exists := c.initErrors["changeRecordRepo"]; exists {
		return nil, storedErr
	}
	return c.changeRecordRepo, nil
}

// SaleRepository returns the sale repository instance.
func (c *Container) SaleRepository() (salesUsecase.SaleRepository, error) {
	c.saleRepoInit.Do(func() {
		repo, err := c.initSaleRepository()
		if err != nil {
			c.initErrors["saleRepo"] = err
			return
		}
		c.saleRepo = repo
	})
	if storedErr, exists := c.initErrors["saleRepo"]; exists {
		return nil, storedErr
	}
	return c.saleRepo, nil
}

// RemoteClient returns the back office client.
func (c *Container) RemoteClient() (syncService.RemoteClient, error) {
	c.remoteClientInit.Do(func() {
		c.remoteClient = syncService.NewHTTPRemoteClient(
			c.config.RemoteBaseURL,
			c.config.RemoteAuthToken,
			c.config.RemoteTimeout,
		)
	})
	return c.remoteClient, nil
}

// OutboxStore returns the outbox store instance.
func (c *Container) OutboxStore() (*outboxUsecase.OutboxStore, error) {
	c.outboxStoreInit.Do(func() {
		store, err := c.initOutboxStore()
		if err != nil {
			c.initErrors["outboxStore"] = err
			return
		}
		c.outboxStore = store
	})
	if storedErr, exists := c.initErrors["outboxStore"]; exists {
		return nil, storedErr
	}
	return c.outboxStore, nil
}

// Engine returns the sync engine instance.
func (c *Container) Engine() (*syncUsecase.Engine, error) {
	c.engineInit.Do(func() {
		engine, err := c.initEngine()
		if err != nil {
			c.initErrors["engine"] = err
			return
		}
		c.engine = engine
	})
	if storedErr, exists := c.initErrors["engine"]; exists {
		return nil, storedErr
	}
	return c.engine, nil
}

// Monitor returns the health monitor instance. The outbox store is wired to
// notify the monitor about dead lettered records.
func (c *Container) Monitor() (*healthUsecase.Monitor, error) {
	c.monitorInit.Do(func() {
		monitor, err := c.initMonitor()
		if err != nil {
			c.initErrors["monitor"] = err
			return
		}
		c.monitor = monitor
	})
	if storedErr, exists := c.initErrors["monitor"]; exists {
		return nil, storedErr
	}
	return c.monitor, nil
}

// Orchestrator returns the recovery orchestrator instance. The health monitor
// is wired to use it for automatic recovery.
func (c *Container) Orchestrator() (*recoveryUsecase.Orchestrator, error) {
	c.orchestratorInit.Do(func() {
		orchestrator, err := c.initOrchestrator()
		if err != nil {
			c.initErrors["orchestrator"] = err
			return
		}
		c.orchestrator = orchestrator
	})
	if storedErr, exists := c.initErrors["orchestrator"]; exists {
		return nil, storedErr
	}
	return c.orchestrator, nil
}

// SaleUseCase returns the sale use case instance.
func (c *Container) SaleUseCase() (salesUsecase.UseCase, error) {
	c.saleUseCaseInit.Do(func() {
		useCase, err := c.initSaleUseCase()
		if err != nil {
			c.initErrors["saleUseCase"] = err
			return
		}
		c.saleUseCase = useCase
	})
	if storedErr, exists := c.initErrors["saleUseCase"]; exists {
		return nil, storedErr
	}
	return c.saleUseCase, nil
}

// HTTPServer returns the operator API server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		server, err := c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		c.httpServer = server
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server instance.
// Returns nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		server, err := c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		c.metricsServer = server
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Stop background loops before the servers so in flight drains finish.
	if c.engine != nil {
		c.engine.Stop()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initSyncMetrics creates the sync pipeline instrumentation.
func (c *Container) initSyncMetrics() (metrics.SyncMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpSyncMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for sync metrics: %w", err)
	}

	syncMetrics, err := metrics.NewSyncMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	return syncMetrics, nil
}

// initChangeRecordRepository creates the change record repository instance.
func (c *Container) initChangeRecordRepository() (outboxUsecase.ChangeRecordRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for change record repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "sqlite3":
		return outboxRepository.NewSQLiteChangeRecordRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLChangeRecordRepository(db), nil
	case "mysql":
		return outboxRepository.NewMySQLChangeRecordRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initSaleRepository creates the sale repository instance.
func (c *Container) initSaleRepository() (salesUsecase.SaleRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for sale repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite3":
		return salesRepository.NewSQLiteSaleRepository(db), nil
	case "postgres":
		return salesRepository.NewPostgreSQLSaleRepository(db), nil
	case "mysql":
		return salesRepository.NewMySQLSaleRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxStore creates the outbox store with all its dependencies.
func (c *Container) initOutboxStore() (*outboxUsecase.OutboxStore, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox store: %w", err)
	}

	repo, err := c.ChangeRecordRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get change record repository for outbox store: %w", err)
	}

	syncMetrics, err := c.SyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metrics for outbox store: %w", err)
	}

	return outboxUsecase.NewOutboxStore(
		c.config.TerminalID,
		c.config.SyncMaxAttempts,
		txManager,
		repo,
		c.Clock(),
		syncMetrics,
	), nil
}

// initEngine creates the sync engine with all its dependencies.
func (c *Container) initEngine() (*syncUsecase.Engine, error) {
	store, err := c.OutboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox store for engine: %w", err)
	}

	remote, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for engine: %w", err)
	}

	syncMetrics, err := c.SyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metrics for engine: %w", err)
	}

	return syncUsecase.NewEngine(
		syncUsecase.EngineConfig{
			TerminalID:   c.config.TerminalID,
			Interval:     c.config.SyncInterval,
			MaxBatchSize: c.config.SyncMaxBatchSize,
			BaseDelay:    c.config.SyncBaseDelay,
			MaxDelay:     c.config.SyncMaxDelay,
		},
		store,
		remote,
		c.Clock(),
		c.Logger(),
		syncMetrics,
	), nil
}

// initMonitor creates the health monitor and registers it as the outbox
// store's dead letter notifier.
func (c *Container) initMonitor() (*healthUsecase.Monitor, error) {
	store, err := c.OutboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox store for monitor: %w", err)
	}

	remote, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for monitor: %w", err)
	}

	engine, err := c.Engine()
	if err != nil {
		return nil, fmt.Errorf("failed to get engine for monitor: %w", err)
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for monitor: %w", err)
	}

	monitor := healthUsecase.NewMonitor(
		healthUsecase.MonitorConfig{
			CheckInterval:           c.config.HealthCheckInterval,
			QueueHighWater:          c.config.HealthQueueHighWater,
			NetworkFailureThreshold: c.config.HealthNetworkFailureThreshold,
			NetworkLatencyThreshold: c.config.HealthNetworkLatencyThreshold,
			BackoffWarningAfter:     c.config.HealthBackoffWarningAfter,
			AutoRecoveryGrace:       c.config.HealthAutoRecoveryGrace,
		},
		store,
		remote,
		engine,
		db,
		c.Clock(),
		c.Logger(),
	)

	store.SetDeadLetterNotifier(monitor)

	return monitor, nil
}

// initOrchestrator creates the recovery orchestrator and registers it as the
// monitor's auto recovery executor.
func (c *Container) initOrchestrator() (*recoveryUsecase.Orchestrator, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, fmt.Errorf("failed to get engine for orchestrator: %w", err)
	}

	store, err := c.OutboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox store for orchestrator: %w", err)
	}

	remote, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for orchestrator: %w", err)
	}

	monitor, err := c.Monitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor for orchestrator: %w", err)
	}

	orchestrator := recoveryUsecase.NewOrchestrator(
		engine,
		store,
		remote,
		monitor,
		c.Clock(),
		c.Logger(),
	)

	monitor.SetAutoExecutor(orchestrator)

	return orchestrator, nil
}

// initSaleUseCase creates the sale use case with all its dependencies.
func (c *Container) initSaleUseCase() (salesUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for sale use case: %w", err)
	}

	saleRepo, err := c.SaleRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get sale repository for sale use case: %w", err)
	}

	store, err := c.OutboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox store for sale use case: %w", err)
	}

	return salesUsecase.NewSaleUseCase(
		c.config.TerminalID,
		txManager,
		saleRepo,
		store,
		c.Clock(),
	), nil
}

// initHTTPServer creates the operator API server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	saleUseCase, err := c.SaleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get sale use case for http server: %w", err)
	}

	engine, err := c.Engine()
	if err != nil {
		return nil, fmt.Errorf("failed to get engine for http server: %w", err)
	}

	store, err := c.OutboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox store for http server: %w", err)
	}

	monitor, err := c.Monitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor for http server: %w", err)
	}

	orchestrator, err := c.Orchestrator()
	if err != nil {
		return nil, fmt.Errorf("failed to get orchestrator for http server: %w", err)
	}

	handlers := http.Handlers{
		Sale:     salesHTTP.NewSaleHandler(saleUseCase, logger),
		Sync:     syncHTTP.NewSyncHandler(engine, store, logger),
		Health:   healthHTTP.NewHealthHandler(monitor, logger),
		Recovery: recoveryHTTP.NewRecoveryHandler(orchestrator, logger),
		Outbox:   outboxHTTP.NewOutboxHandler(store, logger),
	}

	options := http.Options{
		OperatorAPIToken:        c.config.OperatorAPIToken,
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
	}

	return http.NewServer(
		db,
		c.config.ServerHost,
		c.config.ServerPort,
		logger,
		handlers,
		options,
	), nil
}

// initMetricsServer creates the metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}

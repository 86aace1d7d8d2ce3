// Package http provides the operator API server, routing and middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	healthHTTP "github.com/allisson/possync/internal/health/http"
	outboxHTTP "github.com/allisson/possync/internal/outbox/http"
	recoveryHTTP "github.com/allisson/possync/internal/recovery/http"
	salesHTTP "github.com/allisson/possync/internal/sales/http"
	syncHTTP "github.com/allisson/possync/internal/sync/http"
)

// Handlers groups the per-module HTTP handlers mounted on the operator API.
type Handlers struct {
	Sale     *salesHTTP.SaleHandler
	Sync     *syncHTTP.SyncHandler
	Health   *healthHTTP.HealthHandler
	Recovery *recoveryHTTP.RecoveryHandler
	Outbox   *outboxHTTP.OutboxHandler
}

// Options controls the cross-cutting behavior of the operator API.
type Options struct {
	// OperatorAPIToken is the static Bearer token required on /v1 routes.
	// Empty disables authentication.
	OperatorAPIToken string

	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int

	CORSEnabled      bool
	CORSAllowOrigins string
}

// Server represents the operator API HTTP server.
type Server struct {
	db       *sql.DB
	router   *gin.Engine
	server   *http.Server
	logger   *slog.Logger
	handlers Handlers
	options  Options
}

// NewServer creates a new operator API server.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
	handlers Handlers,
	options Options,
) *Server {
	return &Server{
		db:       db,
		logger:   logger,
		handlers: handlers,
		options:  options,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// setupRouter builds the gin engine with all middleware and routes.
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(
		s.options.CORSEnabled,
		s.options.CORSAllowOrigins,
		s.logger,
	); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	// Liveness and readiness stay unauthenticated for process supervisors.
	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.Use(AuthenticationMiddleware(s.options.OperatorAPIToken, s.logger))
	if s.options.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(
			s.options.RateLimitRequestsPerSec,
			s.options.RateLimitBurst,
			s.logger,
		))
	}

	if s.handlers.Sale != nil {
		v1.POST("/sales", s.handlers.Sale.RecordHandler)
		v1.GET("/sales", s.handlers.Sale.ListHandler)
		v1.GET("/sales/:id", s.handlers.Sale.GetHandler)
	}

	if s.handlers.Sync != nil {
		v1.GET("/sync/status", s.handlers.Sync.StatusHandler)
		v1.POST("/sync", s.handlers.Sync.ForceSyncHandler)
		v1.POST("/sync/resume", s.handlers.Sync.ResumeHandler)
		v1.GET("/sync/queue", s.handlers.Sync.QueueHandler)
	}

	if s.handlers.Health != nil {
		v1.GET("/health", s.handlers.Health.ReportHandler)
		v1.POST("/health/check", s.handlers.Health.CheckHandler)
		v1.GET("/alerts", s.handlers.Health.AlertsHandler)
		v1.POST("/alerts/:id/ack", s.handlers.Health.AcknowledgeHandler)
	}

	if s.handlers.Recovery != nil {
		v1.GET("/recovery/actions", s.handlers.Recovery.ActionsHandler)
		v1.POST("/recovery/actions/:id", s.handlers.Recovery.ExecuteHandler)
	}

	if s.handlers.Outbox != nil {
		v1.GET("/outbox/dead-letters", s.handlers.Outbox.DeadLettersHandler)
		v1.GET("/outbox/records/:id", s.handlers.Outbox.RecordHandler)
	}

	return router
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can serve traffic.
// The local database is the only hard dependency; the back office being
// unreachable never makes the terminal unready.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	if s.db == nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("readiness check failed", slog.Any("error", err))
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		s.router = s.setupRouter()
	}
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.router = s.setupRouter()
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

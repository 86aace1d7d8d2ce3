// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// TerminalID identifies this point-of-sale terminal. It scopes the outbox
	// partition this process drains.
	TerminalID string
	// EmployeeID is the authenticated principal attached to locally recorded changes.
	EmployeeID string

	// ServerHost is the host address the operator API server will bind to.
	ServerHost string
	// ServerPort is the port number the operator API server will listen on.
	ServerPort int

	// DBDriver is the database driver to use ("sqlite3", "postgres" or "mysql").
	DBDriver string
	// DBConnectionString is the connection string for the database.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// RemoteBaseURL is the base URL of the back-office sync endpoint.
	RemoteBaseURL string
	// RemoteAuthToken authenticates batch submissions to the back office.
	RemoteAuthToken string
	// RemoteTimeout bounds each batch submission round trip.
	RemoteTimeout time.Duration

	// SyncInterval is the period between drain cycles when the engine is idle.
	SyncInterval time.Duration
	// SyncMaxBatchSize caps the number of change records submitted per batch.
	SyncMaxBatchSize int
	// SyncMaxAttempts is the attempt ceiling before a record is dead-lettered.
	SyncMaxAttempts int
	// SyncBaseDelay is the initial backoff delay after a failed drain cycle.
	SyncBaseDelay time.Duration
	// SyncMaxDelay caps the exponential backoff delay.
	SyncMaxDelay time.Duration
	// SyncPurgeInterval is the period between synced-record purge passes.
	SyncPurgeInterval time.Duration
	// SyncPurgeOlderThan is the minimum age of synced records eligible for purge.
	SyncPurgeOlderThan time.Duration

	// HealthCheckInterval is the period between health monitor ticks.
	HealthCheckInterval time.Duration
	// HealthQueueHighWater is the queue depth above which the outbox check degrades.
	HealthQueueHighWater int
	// HealthNetworkFailureThreshold is the consecutive-failure count that marks the network critical.
	HealthNetworkFailureThreshold int
	// HealthNetworkLatencyThreshold is the round-trip latency above which the network check degrades.
	HealthNetworkLatencyThreshold time.Duration
	// HealthBackoffWarningAfter marks the engine check as warning after this much continuous backoff.
	HealthBackoffWarningAfter time.Duration
	// HealthAutoRecoveryGrace is how long a critical condition must persist
	// before auto-executable recovery actions are triggered.
	HealthAutoRecoveryGrace time.Duration

	// OperatorAPIToken is the static bearer token for the operator API.
	// Empty disables authentication (local development only).
	OperatorAPIToken string

	// RateLimitEnabled indicates whether rate limiting of operator endpoints is enabled.
	RateLimitEnabled bool
	// RateLimitRequestsPerSec is the number of requests allowed per second.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size for operator endpoint rate limiting.
	RateLimitBurst int

	// CORSEnabled indicates whether CORS is enabled for the operator panel.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Terminal identity
		TerminalID: env.GetString("TERMINAL_ID", "terminal-1"),
		EmployeeID: env.GetString("EMPLOYEE_ID", ""),

		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Database configuration
		DBDriver:             env.GetString("DB_DRIVER", "sqlite3"),
		DBConnectionString:   env.GetString("DB_CONNECTION_STRING", "file:possync.db?_busy_timeout=5000&_fk=1"),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 1),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 1),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Remote back office
		RemoteBaseURL:   env.GetString("REMOTE_BASE_URL", "http://localhost:9090"),
		RemoteAuthToken: env.GetString("REMOTE_AUTH_TOKEN", ""),
		RemoteTimeout:   env.GetDuration("REMOTE_TIMEOUT_SECONDS", 10, time.Second),

		// Sync engine
		SyncInterval:       env.GetDuration("SYNC_INTERVAL_SECONDS", 5, time.Second),
		SyncMaxBatchSize:   env.GetInt("SYNC_MAX_BATCH_SIZE", 50),
		SyncMaxAttempts:    env.GetInt("SYNC_MAX_ATTEMPTS", 10),
		SyncBaseDelay:      env.GetDuration("SYNC_BASE_DELAY_SECONDS", 2, time.Second),
		SyncMaxDelay:       env.GetDuration("SYNC_MAX_DELAY_SECONDS", 300, time.Second),
		SyncPurgeInterval:  env.GetDuration("SYNC_PURGE_INTERVAL_MINUTES", 60, time.Minute),
		SyncPurgeOlderThan: env.GetDuration("SYNC_PURGE_OLDER_THAN_HOURS", 72, time.Hour),

		// Health monitor
		HealthCheckInterval:           env.GetDuration("HEALTH_CHECK_INTERVAL_SECONDS", 15, time.Second),
		HealthQueueHighWater:          env.GetInt("HEALTH_QUEUE_HIGH_WATER", 500),
		HealthNetworkFailureThreshold: env.GetInt("HEALTH_NETWORK_FAILURE_THRESHOLD", 5),
		HealthNetworkLatencyThreshold: env.GetDuration("HEALTH_NETWORK_LATENCY_THRESHOLD_MS", 2000, time.Millisecond),
		HealthBackoffWarningAfter:     env.GetDuration("HEALTH_BACKOFF_WARNING_AFTER_SECONDS", 60, time.Second),
		HealthAutoRecoveryGrace:       env.GetDuration("HEALTH_AUTO_RECOVERY_GRACE_SECONDS", 120, time.Second),

		// Operator API
		OperatorAPIToken: env.GetString("OPERATOR_API_TOKEN", ""),

		// Rate Limiting (operator endpoints)
		RateLimitEnabled:        env.GetBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerSec: env.GetFloat64("RATE_LIMIT_REQUESTS_PER_SEC", 10.0),
		RateLimitBurst:          env.GetInt("RATE_LIMIT_BURST", 20),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "possync"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	case "info", "warn", "error":
		return "release"
	default:
		return "release"
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}

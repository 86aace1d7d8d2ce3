package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	"github.com/allisson/possync/internal/health/domain"
	"github.com/allisson/possync/internal/health/usecase"
	"github.com/allisson/possync/internal/metrics"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	outboxRepository "github.com/allisson/possync/internal/outbox/repository"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	syncDomain "github.com/allisson/possync/internal/sync/domain"
	"github.com/allisson/possync/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// healthyRemote answers pings with a low latency.
type healthyRemote struct{}

func (r *healthyRemote) SubmitBatch(
	ctx context.Context,
	terminalID string,
	records []*outboxDomain.ChangeRecord,
) (*syncDomain.BatchResult, error) {
	return &syncDomain.BatchResult{}, nil
}

func (r *healthyRemote) Ping(ctx context.Context) (int64, error) { return 5, nil }

func (r *healthyRemote) Reset() {}

// idleEngine reports a healthy idle engine.
type idleEngine struct{}

func (e *idleEngine) Status() syncDomain.SyncMetrics {
	return syncDomain.SyncMetrics{State: syncDomain.EngineStateIdle, IsOnline: true}
}

func setupHandler(t *testing.T) *HealthHandler {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	txManager := database.NewTxManager(db)
	repo := outboxRepository.NewSQLiteChangeRecordRepository(db)
	clk := clock.New()
	store := outboxUsecase.NewOutboxStore(
		"terminal-1", 3, txManager, repo, clk, metrics.NewNoOpSyncMetrics(),
	)

	monitor := usecase.NewMonitor(
		usecase.MonitorConfig{
			CheckInterval:           15 * time.Second,
			QueueHighWater:          100,
			NetworkFailureThreshold: 5,
			NetworkLatencyThreshold: 2 * time.Second,
			BackoffWarningAfter:     time.Minute,
			AutoRecoveryGrace:       2 * time.Minute,
		},
		store,
		&healthyRemote{},
		&idleEngine{},
		db,
		clk,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHealthHandler(monitor, logger)
}

func doRequest(handler gin.HandlerFunc, method, path string, params gin.Params) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	c.Params = params
	handler(c)
	return w
}

func TestHealthHandler_ReportHandler(t *testing.T) {
	handler := setupHandler(t)

	w := doRequest(handler.ReportHandler, http.MethodGet, "/v1/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var report domain.Report
	err := json.Unmarshal(w.Body.Bytes(), &report)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
}

func TestHealthHandler_CheckHandler(t *testing.T) {
	handler := setupHandler(t)

	w := doRequest(handler.CheckHandler, http.MethodPost, "/v1/health/check", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var report domain.Report
	err := json.Unmarshal(w.Body.Bytes(), &report)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
	assert.Len(t, report.Checks, 4)
}

func TestHealthHandler_AlertsHandler_Empty(t *testing.T) {
	handler := setupHandler(t)

	w := doRequest(handler.AlertsHandler, http.MethodGet, "/v1/alerts", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string][]domain.Alert
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Empty(t, response["alerts"])
}

func TestHealthHandler_AcknowledgeHandler_InvalidID(t *testing.T) {
	handler := setupHandler(t)

	w := doRequest(
		handler.AcknowledgeHandler,
		http.MethodPost,
		"/v1/alerts/not-a-uuid/ack",
		gin.Params{{Key: "id", Value: "not-a-uuid"}},
	)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthHandler_AcknowledgeHandler_UnknownAlert(t *testing.T) {
	handler := setupHandler(t)

	alertID := uuid.Must(uuid.NewV7())
	w := doRequest(
		handler.AcknowledgeHandler,
		http.MethodPost,
		"/v1/alerts/"+alertID.String()+"/ack",
		gin.Params{{Key: "id", Value: alertID.String()}},
	)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

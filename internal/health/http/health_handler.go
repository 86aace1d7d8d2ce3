// Package http provides HTTP handlers for health monitoring operations.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/health/usecase"
	"github.com/allisson/possync/internal/httputil"
)

// HealthHandler handles health monitoring HTTP requests
type HealthHandler struct {
	monitor *usecase.Monitor
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(monitor *usecase.Monitor, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// ReportHandler returns the latest component health report.
// GET /v1/health
func (h *HealthHandler) ReportHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Status())
}

// CheckHandler runs the component checks immediately and returns the report.
// POST /v1/health/check
func (h *HealthHandler) CheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.CheckNow(c.Request.Context()))
}

// AlertsHandler returns alerts newest first. Acknowledged alerts are hidden
// unless include_acknowledged=true.
// GET /v1/alerts
func (h *HealthHandler) AlertsHandler(c *gin.Context) {
	includeAcknowledged := c.Query("include_acknowledged") == "true"
	c.JSON(http.StatusOK, gin.H{"alerts": h.monitor.Alerts(includeAcknowledged)})
}

// AcknowledgeHandler marks an alert as seen by an operator.
// POST /v1/alerts/:id/ack
func (h *HealthHandler) AcknowledgeHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid alert id"), h.logger)
		return
	}

	if err := h.monitor.Acknowledge(id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// Package http provides HTTP handlers for recovery operations.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/possync/internal/httputil"
	"github.com/allisson/possync/internal/recovery/domain"
	"github.com/allisson/possync/internal/recovery/usecase"
)

// executeRequest is the body of an action execution request.
type executeRequest struct {
	Confirm bool `json:"confirm"`
}

// RecoveryHandler handles recovery HTTP requests
type RecoveryHandler struct {
	orchestrator *usecase.Orchestrator
	logger       *slog.Logger
}

// NewRecoveryHandler creates a new RecoveryHandler
func NewRecoveryHandler(orchestrator *usecase.Orchestrator, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ActionsHandler returns the recovery action catalog.
// GET /v1/recovery/actions
func (h *RecoveryHandler) ActionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": h.orchestrator.Actions()})
}

// ExecuteHandler runs a recovery action. Destructive actions need
// {"confirm": true} in the body.
// POST /v1/recovery/actions/:id
func (h *RecoveryHandler) ExecuteHandler(c *gin.Context) {
	var req executeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), domain.ActionID(c.Param("id")), req.Confirm)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, result)
}

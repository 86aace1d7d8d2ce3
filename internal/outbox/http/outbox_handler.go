// Package http provides HTTP handlers for outbox inspection.
package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/httputil"
	"github.com/allisson/possync/internal/outbox/usecase"
)

// OutboxHandler handles outbox inspection HTTP requests
type OutboxHandler struct {
	outbox usecase.Store
	logger *slog.Logger
}

// NewOutboxHandler creates a new OutboxHandler
func NewOutboxHandler(outbox usecase.Store, logger *slog.Logger) *OutboxHandler {
	return &OutboxHandler{
		outbox: outbox,
		logger: logger,
	}
}

// DeadLettersHandler returns dead letter records, oldest first.
// GET /v1/outbox/dead-letters?limit=50
func (h *OutboxHandler) DeadLettersHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			httputil.HandleBadRequestGin(c, apperrors.New("limit must be an integer between 1 and 500"), h.logger)
			return
		}
		limit = parsed
	}

	records, err := h.outbox.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": toRecordResponses(records)})
}

// RecordHandler returns one change record by its ID.
// GET /v1/outbox/records/:id
func (h *OutboxHandler) RecordHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid record id"), h.logger)
		return
	}

	record, err := h.outbox.GetByID(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(record))
}

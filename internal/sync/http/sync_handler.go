// Package http provides HTTP handlers for sync engine operations.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/possync/internal/httputil"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	syncUsecase "github.com/allisson/possync/internal/sync/usecase"
)

// SyncHandler handles sync engine HTTP requests
type SyncHandler struct {
	engine *syncUsecase.Engine
	outbox outboxUsecase.Store
	logger *slog.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine *syncUsecase.Engine, outbox outboxUsecase.Store, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		outbox: outbox,
		logger: logger,
	}
}

// StatusHandler returns the engine's current metrics snapshot.
// GET /v1/sync/status
func (h *SyncHandler) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// ForceSyncHandler requests an immediate drain of the outbox. Concurrent
// requests coalesce into a single drain.
// POST /v1/sync - Returns 202 Accepted.
func (h *SyncHandler) ForceSyncHandler(c *gin.Context) {
	h.engine.ForceSync()
	c.JSON(http.StatusAccepted, gin.H{"status": "sync requested"})
}

// ResumeHandler lifts a configuration pause.
// POST /v1/sync/resume - Returns 202 Accepted.
func (h *SyncHandler) ResumeHandler(c *gin.Context) {
	h.engine.Resume()
	c.JSON(http.StatusAccepted, gin.H{"status": "engine resumed"})
}

// QueueHandler returns the outbox queue depth and age of the oldest waiting
// record.
// GET /v1/sync/queue
func (h *SyncHandler) QueueHandler(c *gin.Context) {
	ctx := c.Request.Context()

	depth, err := h.outbox.QueueDepth(ctx)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	age, err := h.outbox.OldestPendingAge(ctx)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue_depth":               depth,
		"oldest_pending_age_millis": age.Milliseconds(),
	})
}

// Package http provides HTTP handlers for sale operations.
package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/allisson/possync/internal/httputil"
	"github.com/allisson/possync/internal/sales/http/dto"
	"github.com/allisson/possync/internal/sales/usecase"
)

// SaleHandler handles sale-related HTTP requests
type SaleHandler struct {
	saleUseCase usecase.UseCase
	logger      *slog.Logger
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(saleUseCase usecase.UseCase, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{
		saleUseCase: saleUseCase,
		logger:      logger,
	}
}

// RecordHandler records a completed sale.
// POST /v1/sales - Returns 201 Created with the stored sale.
func (h *SaleHandler) RecordHandler(c *gin.Context) {
	var req dto.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	sale, err := h.saleUseCase.RecordSale(c.Request.Context(), dto.ToRecordSaleInput(req))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.ToSaleResponse(sale))
}

// GetHandler retrieves a single sale.
// GET /v1/sales/:id
func (h *SaleHandler) GetHandler(c *gin.Context) {
	sale, err := h.saleUseCase.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToSaleResponse(sale))
}

// ListHandler retrieves the terminal's most recent sales.
// GET /v1/sales?limit=20
func (h *SaleHandler) ListHandler(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			httputil.HandleBadRequestGin(c, errInvalidLimit, h.logger)
			return
		}
		limit = parsed
	}

	sales, err := h.saleUseCase.ListRecentSales(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToSaleListResponse(sales))
}

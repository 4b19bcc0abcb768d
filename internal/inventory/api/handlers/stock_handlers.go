package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp-platform/order-lifecycle/internal/inventory/application"
	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
	"github.com/erp-platform/order-lifecycle/pkg/api"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/middleware"
)

// StockHandlers exposes the stock ledger over HTTP
type StockHandlers struct {
	service *application.LedgerService
	logger  *logging.Logger
}

// NewStockHandlers creates a new StockHandlers
func NewStockHandlers(service *application.LedgerService, logger *logging.Logger) *StockHandlers {
	return &StockHandlers{service: service, logger: logger}
}

// RegisterRoutes registers stock routes on the router
func (h *StockHandlers) RegisterRoutes(router *gin.RouterGroup) {
	stock := router.Group("/stock")
	{
		stock.POST("/receive", h.ReceiveStock)
		stock.POST("/adjust", h.AdjustStock)
		stock.GET("/levels", h.ListStockLevels)
		stock.GET("/movements", h.ListMovements)
		stock.POST("/movements/:movementId/reverse", h.ReverseMovement)
		stock.POST("/reservations", h.CreateReservation)
		stock.GET("/reservations/:reservationId", h.GetReservation)
		stock.POST("/reservations/:reservationId/release", h.ReleaseReservation)
		stock.POST("/reservations/:reservationId/consume", h.ConsumeReservation)
		stock.GET("/:sku/availability", h.CheckAvailability)
	}
}

// ReceiveStock handles inbound stock receipts
func (h *StockHandlers) ReceiveStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		SKU         string  `json:"sku" binding:"required"`
		VariantID   string  `json:"variantId"`
		LocationID  string  `json:"locationId" binding:"required"`
		Quantity    int     `json:"quantity" binding:"required,gt=0"`
		UnitCost    float64 `json:"unitCost" binding:"gte=0"`
		Reference   string  `json:"reference"`
		PerformedBy string  `json:"performedBy"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	movement, err := h.service.ReceiveStock(c.Request.Context(), application.ReceiveStockCommand{
		SKU:         req.SKU,
		VariantID:   req.VariantID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		Reference:   req.Reference,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, movement)
}

// AdjustStock handles manual stock adjustments
func (h *StockHandlers) AdjustStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		SKU          string `json:"sku" binding:"required"`
		VariantID    string `json:"variantId"`
		LocationID   string `json:"locationId" binding:"required"`
		Delta        int    `json:"delta" binding:"required"`
		MovementType string `json:"movementType"`
		Reason       string `json:"reason" binding:"required"`
		PerformedBy  string `json:"performedBy"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	movement, err := h.service.AdjustStock(c.Request.Context(), application.AdjustStockCommand{
		SKU:          req.SKU,
		VariantID:    req.VariantID,
		LocationID:   req.LocationID,
		Delta:        req.Delta,
		MovementType: domain.MovementType(req.MovementType),
		Reason:       req.Reason,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, movement)
}

// ListStockLevels lists stock levels with optional filters
func (h *StockHandlers) ListStockLevels(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	page := api.ParsePagination(c)

	filter := domain.StockLevelFilter{
		SKU:        c.Query("sku"),
		LocationID: c.Query("locationId"),
		VariantID:  c.Query("variantId"),
		ActiveOnly: c.Query("activeOnly") == "true",
		Limit:      int(page.GetLimit()),
		Offset:     int(page.GetOffset()),
	}
	if c.Query("belowReorderPoint") == "true" {
		filter.BelowReorderPoint = true
	}

	levels, total, err := h.service.ListStockLevels(c.Request.Context(), filter)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(levels, page.Page, page.PageSize, total))
}

// ListMovements lists the movement ledger with optional filters
func (h *StockHandlers) ListMovements(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	page := api.ParsePagination(c)

	filter := domain.MovementFilter{
		SKU:        c.Query("sku"),
		LocationID: c.Query("locationId"),
		Type:       domain.MovementType(c.Query("type")),
		Reference:  c.Query("reference"),
		Limit:      int(page.GetLimit()),
		Offset:     int(page.GetOffset()),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			responder.RespondBadRequest("since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			responder.RespondBadRequest("until must be RFC3339")
			return
		}
		filter.Until = &t
	}

	movements, total, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(movements, page.Page, page.PageSize, total))
}

// ReverseMovement produces a compensating movement for a prior one
func (h *StockHandlers) ReverseMovement(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Reason      string `json:"reason" binding:"required"`
		PerformedBy string `json:"performedBy"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	reversal, err := h.service.ReverseMovement(c.Request.Context(), application.ReverseMovementCommand{
		MovementID:  c.Param("movementId"),
		Reason:      req.Reason,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, reversal)
}

// CreateReservation earmarks stock for a business document
func (h *StockHandlers) CreateReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		SKU        string     `json:"sku" binding:"required"`
		VariantID  string     `json:"variantId"`
		LocationID string     `json:"locationId" binding:"required"`
		Quantity   int        `json:"quantity" binding:"required,gt=0"`
		Reference  string     `json:"reference" binding:"required"`
		ExpiresAt  *time.Time `json:"expiresAt"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	reservation, err := h.service.ReserveStock(c.Request.Context(), application.ReserveStockCommand{
		SKU:        req.SKU,
		VariantID:  req.VariantID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Reference:  req.Reference,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, reservation)
}

// GetReservation returns a reservation by id
func (h *StockHandlers) GetReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	reservation, err := h.service.GetReservation(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// ReleaseReservation returns reserved stock to availability
func (h *StockHandlers) ReleaseReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	reservation, err := h.service.ReleaseReservation(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// ConsumeReservation converts a reservation into an actual stock deduction
func (h *StockHandlers) ConsumeReservation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	reservation, err := h.service.ConsumeReservation(c.Request.Context(), c.Param("reservationId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// CheckAvailability reports availability for a SKU, scoped to a single
// location when locationId is given
func (h *StockHandlers) CheckAvailability(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	requested := 0
	if q := c.Query("quantity"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed < 0 {
			responder.RespondBadRequest("quantity must be a non-negative integer")
			return
		}
		requested = parsed
	}

	result, err := h.service.CheckAvailability(c.Request.Context(), c.Param("sku"), c.Query("variantId"), c.Query("locationId"), requested)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

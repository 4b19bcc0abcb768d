package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp-platform/order-lifecycle/internal/sales/application"
	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/api"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/middleware"
)

// orderLineRequest is one line item on an order or quote request
type orderLineRequest struct {
	SKU         string  `json:"sku" binding:"required"`
	VariantID   string  `json:"variantId"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" binding:"gte=0"`
	Discount    float64 `json:"discount" binding:"gte=0"`
}

func toLineInputs(lines []orderLineRequest) []application.OrderLineInput {
	inputs := make([]application.OrderLineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, application.OrderLineInput{
			SKU:         line.SKU,
			VariantID:   line.VariantID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
		})
	}
	return inputs
}

// OrderHandlers exposes the order lifecycle over HTTP
type OrderHandlers struct {
	service *application.OrderService
	logger  *logging.Logger
}

// NewOrderHandlers creates a new OrderHandlers
func NewOrderHandlers(service *application.OrderService, logger *logging.Logger) *OrderHandlers {
	return &OrderHandlers{service: service, logger: logger}
}

// RegisterRoutes registers order routes on the router
func (h *OrderHandlers) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:orderId", h.GetOrder)
		orders.POST("/:orderId/submit", h.SubmitOrder)
		orders.POST("/:orderId/confirm", h.ConfirmOrder)
		orders.POST("/:orderId/cancel", h.CancelOrder)
		orders.POST("/:orderId/hold", h.HoldOrder)
		orders.POST("/:orderId/release-hold", h.ReleaseHold)
		orders.POST("/:orderId/start-production", h.StartProduction)
		orders.POST("/:orderId/ready-to-ship", h.MarkReadyToShip)
		orders.POST("/:orderId/ship", h.ShipItems)
		orders.POST("/:orderId/deliver", h.MarkDelivered)
		orders.POST("/:orderId/complete", h.CompleteOrder)
		orders.POST("/:orderId/payments", h.RecordPayment)
	}
}

// CreateOrder creates a draft order
func (h *OrderHandlers) CreateOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		CustomerID string             `json:"customerId" binding:"required"`
		Currency   string             `json:"currency"`
		TaxRate    float64            `json:"taxRate" binding:"gte=0"`
		Lines      []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		TaxRate:    req.TaxRate,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder returns an order by id
func (h *OrderHandlers) GetOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	order, err := h.service.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders lists orders with optional filters
func (h *OrderHandlers) ListOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	page := api.ParsePagination(c)

	filter := domain.OrderFilter{
		CustomerID: c.Query("customerId"),
		Status:     domain.OrderStatus(c.Query("status")),
		Limit:      int(page.GetLimit()),
		Offset:     int(page.GetOffset()),
	}

	orders, total, err := h.service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(orders, page.Page, page.PageSize, total))
}

func (h *OrderHandlers) transition(c *gin.Context, fn func(string) (*domain.SalesOrder, error)) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	order, err := fn(c.Param("orderId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// SubmitOrder moves a draft order to pending
func (h *OrderHandlers) SubmitOrder(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.SubmitOrder(c.Request.Context(), orderID)
	})
}

// ConfirmOrder confirms a draft order, reserving inventory for every line
func (h *OrderHandlers) ConfirmOrder(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.ConfirmOrder(c.Request.Context(), orderID)
	})
}

// CancelOrder cancels the order and releases its reservations
func (h *OrderHandlers) CancelOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	order, err := h.service.CancelOrder(c.Request.Context(), c.Param("orderId"), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// HoldOrder parks the order
func (h *OrderHandlers) HoldOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.HoldOrder(c.Request.Context(), c.Param("orderId"), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ReleaseHold returns a held order to its previous status
func (h *OrderHandlers) ReleaseHold(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.ReleaseOrderHold(c.Request.Context(), orderID)
	})
}

// StartProduction moves a confirmed order into production
func (h *OrderHandlers) StartProduction(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.StartProduction(c.Request.Context(), orderID)
	})
}

// MarkReadyToShip flags the order ready for the warehouse
func (h *OrderHandlers) MarkReadyToShip(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.MarkReadyToShip(c.Request.Context(), orderID)
	})
}

// ShipItems records shipped quantities keyed by line number
func (h *OrderHandlers) ShipItems(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Shipments map[int]int `json:"shipments" binding:"required"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.ShipOrderItems(c.Request.Context(), application.ShipOrderItemsCommand{
		OrderID:   c.Param("orderId"),
		Shipments: req.Shipments,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// MarkDelivered confirms delivery
func (h *OrderHandlers) MarkDelivered(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.MarkDelivered(c.Request.Context(), orderID)
	})
}

// CompleteOrder closes out a delivered order
func (h *OrderHandlers) CompleteOrder(c *gin.Context) {
	h.transition(c, func(orderID string) (*domain.SalesOrder, error) {
		return h.service.CompleteOrder(c.Request.Context(), orderID)
	})
}

// RecordPayment posts a payment against the order
func (h *OrderHandlers) RecordPayment(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		Amount float64 `json:"amount" binding:"required,gt=0"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.RecordPayment(c.Request.Context(), application.RecordPaymentCommand{
		OrderID: c.Param("orderId"),
		Amount:  req.Amount,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

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

// QuoteHandlers exposes the quoting lifecycle over HTTP
type QuoteHandlers struct {
	service *application.QuoteService
	logger  *logging.Logger
}

// NewQuoteHandlers creates a new QuoteHandlers
func NewQuoteHandlers(service *application.QuoteService, logger *logging.Logger) *QuoteHandlers {
	return &QuoteHandlers{service: service, logger: logger}
}

// RegisterRoutes registers quote routes on the router
func (h *QuoteHandlers) RegisterRoutes(router *gin.RouterGroup) {
	quotes := router.Group("/quotes")
	{
		quotes.POST("", h.CreateQuote)
		quotes.GET("", h.ListQuotes)
		quotes.GET("/:quoteId", h.GetQuote)
		quotes.POST("/:quoteId/send", h.SendQuote)
		quotes.POST("/:quoteId/accept", h.AcceptQuote)
		quotes.POST("/:quoteId/reject", h.RejectQuote)
		quotes.POST("/:quoteId/convert", h.ConvertQuote)
	}
}

// CreateQuote creates a draft quote
func (h *QuoteHandlers) CreateQuote(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		CustomerID      string             `json:"customerId" binding:"required"`
		Currency        string             `json:"currency"`
		TaxRate         float64            `json:"taxRate" binding:"gte=0"`
		DiscountPercent float64            `json:"discountPercent" binding:"gte=0,lte=100"`
		ValidityDays    int                `json:"validityDays" binding:"gte=0"`
		Lines           []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	quote, err := h.service.CreateQuote(c.Request.Context(), application.CreateQuoteCommand{
		CustomerID:      req.CustomerID,
		Currency:        req.Currency,
		TaxRate:         req.TaxRate,
		DiscountPercent: req.DiscountPercent,
		ValidityDays:    req.ValidityDays,
		Lines:           toLineInputs(req.Lines),
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, quote)
}

// GetQuote returns a quote by id
func (h *QuoteHandlers) GetQuote(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	quote, err := h.service.GetQuote(c.Request.Context(), c.Param("quoteId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// ListQuotes lists quotes with optional filters
func (h *QuoteHandlers) ListQuotes(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	page := api.ParsePagination(c)

	filter := domain.QuoteFilter{
		CustomerID: c.Query("customerId"),
		Status:     domain.QuoteStatus(c.Query("status")),
		Limit:      int(page.GetLimit()),
		Offset:     int(page.GetOffset()),
	}

	quotes, total, err := h.service.ListQuotes(c.Request.Context(), filter)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(quotes, page.Page, page.PageSize, total))
}

// SendQuote sends the quote, routing it through approval when the discount
// requires sign-off
func (h *QuoteHandlers) SendQuote(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		RequestedBy string `json:"requestedBy"`
	}
	if c.Request.ContentLength > 0 {
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	quote, err := h.service.SendQuote(c.Request.Context(), c.Param("quoteId"), req.RequestedBy)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// AcceptQuote records customer acceptance
func (h *QuoteHandlers) AcceptQuote(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	quote, err := h.service.AcceptQuote(c.Request.Context(), c.Param("quoteId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// RejectQuote records customer rejection
func (h *QuoteHandlers) RejectQuote(c *gin.Context) {
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

	quote, err := h.service.RejectQuote(c.Request.Context(), c.Param("quoteId"), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// ConvertQuote converts an accepted quote into a draft order
func (h *QuoteHandlers) ConvertQuote(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	order, err := h.service.ConvertQuote(c.Request.Context(), c.Param("quoteId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

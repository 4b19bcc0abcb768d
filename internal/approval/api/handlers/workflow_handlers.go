package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp-platform/order-lifecycle/internal/approval/application"
	"github.com/erp-platform/order-lifecycle/internal/approval/domain"
	"github.com/erp-platform/order-lifecycle/pkg/api"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/middleware"
)

// WorkflowHandlers exposes approval workflows over HTTP
type WorkflowHandlers struct {
	service *application.ApprovalService
	logger  *logging.Logger
}

// NewWorkflowHandlers creates a new WorkflowHandlers
func NewWorkflowHandlers(service *application.ApprovalService, logger *logging.Logger) *WorkflowHandlers {
	return &WorkflowHandlers{service: service, logger: logger}
}

// RegisterRoutes registers approval routes on the router
func (h *WorkflowHandlers) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/approvals")
	{
		approvals.POST("", h.RequestApproval)
		approvals.GET("", h.ListWorkflows)
		approvals.GET("/:workflowId", h.GetWorkflow)
		approvals.POST("/:workflowId/approve", h.ApproveStep)
		approvals.POST("/:workflowId/reject", h.RejectStep)
		approvals.POST("/:workflowId/delegate", h.DelegateStep)
		approvals.POST("/:workflowId/escalate", h.EscalateStep)
		approvals.POST("/:workflowId/cancel", h.CancelWorkflow)
	}
}

// RequestApproval starts a new approval workflow for a subject. Quote
// approvals are normally requested by the sales application; this endpoint
// covers subjects owned by other systems, such as purchase orders.
func (h *WorkflowHandlers) RequestApproval(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		SubjectType string  `json:"subjectType" binding:"required"`
		SubjectID   string  `json:"subjectId" binding:"required"`
		RequestedBy string  `json:"requestedBy" binding:"required"`
		Amount      float64 `json:"amount" binding:"gte=0"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	workflowID, err := h.service.RequestApproval(c.Request.Context(), req.SubjectType, req.SubjectID, req.RequestedBy, req.Amount)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	workflow, err := h.service.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, workflow)
}

// GetWorkflow returns a workflow by id
func (h *WorkflowHandlers) GetWorkflow(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	workflow, err := h.service.GetWorkflow(c.Request.Context(), c.Param("workflowId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// ListWorkflows lists workflows with optional filters
func (h *WorkflowHandlers) ListWorkflows(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	page := api.ParsePagination(c)

	filter := domain.WorkflowFilter{
		SubjectType: c.Query("subjectType"),
		SubjectID:   c.Query("subjectId"),
		Status:      domain.WorkflowStatus(c.Query("status")),
		ApproverID:  c.Query("approverId"),
		Limit:       int(page.GetLimit()),
		Offset:      int(page.GetOffset()),
	}

	workflows, total, err := h.service.ListWorkflows(c.Request.Context(), filter)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, api.NewPageResponse(workflows, page.Page, page.PageSize, total))
}

// ApproveStep approves the current step as the assigned approver
func (h *WorkflowHandlers) ApproveStep(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		ApproverID string `json:"approverId" binding:"required"`
		Notes      string `json:"notes"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	workflow, err := h.service.ApproveStep(c.Request.Context(), application.StepDecisionCommand{
		WorkflowID: c.Param("workflowId"),
		ApproverID: req.ApproverID,
		Notes:      req.Notes,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// RejectStep rejects the workflow from the current step
func (h *WorkflowHandlers) RejectStep(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		ApproverID string `json:"approverId" binding:"required"`
		Reason     string `json:"reason"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	workflow, err := h.service.RejectStep(c.Request.Context(), application.StepDecisionCommand{
		WorkflowID: c.Param("workflowId"),
		ApproverID: req.ApproverID,
		Notes:      req.Reason,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// DelegateStep hands the current step to another approver
func (h *WorkflowHandlers) DelegateStep(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		DelegatorID string `json:"delegatorId" binding:"required"`
		DelegateID  string `json:"delegateId" binding:"required"`
	}
	if appErr := api.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	workflow, err := h.service.DelegateStep(c.Request.Context(), application.DelegateStepCommand{
		WorkflowID:  c.Param("workflowId"),
		DelegatorID: req.DelegatorID,
		DelegateID:  req.DelegateID,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// EscalateStep reassigns the current step to the escalation target
func (h *WorkflowHandlers) EscalateStep(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		ToUserID string `json:"toUserId"`
	}
	if c.Request.ContentLength > 0 {
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	workflow, err := h.service.EscalateStep(c.Request.Context(), c.Param("workflowId"), req.ToUserID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// CancelWorkflow withdraws an undecided workflow
func (h *WorkflowHandlers) CancelWorkflow(c *gin.Context) {
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

	workflow, err := h.service.CancelWorkflow(c.Request.Context(), c.Param("workflowId"), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, workflow)
}

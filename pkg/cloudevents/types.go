package cloudevents

import (
	"time"
)

// EventType constants for ERP domain events
const (
	// Order events
	OrderCreated       = "erp.order.created"
	OrderConfirmed     = "erp.order.confirmed"
	OrderOnHold        = "erp.order.on-hold"
	OrderHoldReleased  = "erp.order.hold-released"
	OrderCancelled     = "erp.order.cancelled"
	OrderItemsShipped  = "erp.order.items-shipped"
	OrderShipped       = "erp.order.shipped"
	OrderDelivered     = "erp.order.delivered"
	OrderCompleted     = "erp.order.completed"
	OrderPaymentPosted = "erp.order.payment-posted"

	// Quote events
	QuoteCreated           = "erp.quote.created"
	QuoteSubmittedApproval = "erp.quote.submitted-for-approval"
	QuoteApproved          = "erp.quote.approved"
	QuoteSent              = "erp.quote.sent"
	QuoteAccepted          = "erp.quote.accepted"
	QuoteRejected          = "erp.quote.rejected"
	QuoteExpired           = "erp.quote.expired"
	QuoteConverted         = "erp.quote.converted"

	// Inventory events
	StockReceived        = "erp.inventory.received"
	StockAdjusted        = "erp.inventory.adjusted"
	StockReserved        = "erp.inventory.reserved"
	StockReleased        = "erp.inventory.released"
	StockConsumed        = "erp.inventory.consumed"
	MovementReversed     = "erp.inventory.movement-reversed"
	LowStockAlert        = "erp.inventory.low-stock-alert"

	// Approval events
	ApprovalRequested  = "erp.approval.requested"
	ApprovalStepPassed = "erp.approval.step-approved"
	ApprovalDelegated  = "erp.approval.delegated"
	ApprovalEscalated  = "erp.approval.escalated"
	ApprovalApproved   = "erp.approval.approved"
	ApprovalRejected   = "erp.approval.rejected"
	ApprovalExpired    = "erp.approval.expired"
	ApprovalCancelled  = "erp.approval.cancelled"
)

// Source constants for event sources
const (
	SourceSales     = "/erp/sales"
	SourceInventory = "/erp/inventory"
	SourceApprovals = "/erp/approvals"
)

// CloudEvent represents a CloudEvents v1.0 compliant event envelope
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// ERP-specific extensions
	CorrelationID string `json:"erpcorrelationid,omitempty"`
	OrderNumber   string `json:"erpordernumber,omitempty"`
	TenantID      string `json:"erptenantid,omitempty"`
}

// OrderConfirmedData represents the data payload for OrderConfirmed event
type OrderConfirmedData struct {
	OrderID        string   `json:"orderId"`
	OrderNumber    string   `json:"orderNumber"`
	CustomerID     string   `json:"customerId"`
	ReservationIDs []string `json:"reservationIds"`
	TotalAmount    float64  `json:"totalAmount"`
}

// StockAdjustedData represents the data payload for StockAdjusted event
type StockAdjustedData struct {
	SKU          string `json:"sku"`
	LocationID   string `json:"locationId"`
	PreviousQty  int    `json:"previousQuantity"`
	NewQty       int    `json:"newQuantity"`
	MovementType string `json:"movementType"`
	Reason       string `json:"reason,omitempty"`
}

// StockReservedData represents the data payload for StockReserved event
type StockReservedData struct {
	ReservationID string `json:"reservationId"`
	SKU           string `json:"sku"`
	Quantity      int    `json:"quantity"`
	Reference     string `json:"reference"`
}

// ApprovalDecidedData represents the data payload for terminal approval events
type ApprovalDecidedData struct {
	WorkflowID    string `json:"workflowId"`
	SubjectType   string `json:"subjectType"`
	SubjectID     string `json:"subjectId"`
	FinalDecision string `json:"finalDecision"`
	DecidedBy     string `json:"decidedBy"`
}

package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// OrderCreatedEvent is published when an order is created
type OrderCreatedEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	QuoteID     string    `json:"quoteId,omitempty"`
	GrandTotal  float64   `json:"grandTotal"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e *OrderCreatedEvent) EventType() string { return "erp.order.created" }
func (e *OrderCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// OrderConfirmedEvent is published when an order is confirmed with reservations held
type OrderConfirmedEvent struct {
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	CustomerID     string    `json:"customerId"`
	ReservationIDs []string  `json:"reservationIds"`
	GrandTotal     float64   `json:"grandTotal"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

func (e *OrderConfirmedEvent) EventType() string { return "erp.order.confirmed" }
func (e *OrderConfirmedEvent) OccurredAt() time.Time { return e.ConfirmedAt }

// OrderOnHoldEvent is published when an order is parked on hold
type OrderOnHoldEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	FromStatus  string    `json:"fromStatus"`
	Reason      string    `json:"reason"`
	HeldAt      time.Time `json:"heldAt"`
}

func (e *OrderOnHoldEvent) EventType() string { return "erp.order.on-hold" }
func (e *OrderOnHoldEvent) OccurredAt() time.Time { return e.HeldAt }

// OrderHoldReleasedEvent is published when a hold is lifted
type OrderHoldReleasedEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	ToStatus    string    `json:"toStatus"`
	ReleasedAt  time.Time `json:"releasedAt"`
}

func (e *OrderHoldReleasedEvent) EventType() string { return "erp.order.hold-released" }
func (e *OrderHoldReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// OrderCancelledEvent is published when an order is cancelled
type OrderCancelledEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	FromStatus  string    `json:"fromStatus"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e *OrderCancelledEvent) EventType() string { return "erp.order.cancelled" }
func (e *OrderCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }

// OrderItemsShippedEvent is published on every shipment, partial or full
type OrderItemsShippedEvent struct {
	OrderID        string      `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	Shipments      map[int]int `json:"shipments"`
	ItemsShipped   int         `json:"itemsShipped"`
	ItemsRemaining int         `json:"itemsRemaining"`
	ShippedAt      time.Time   `json:"shippedAt"`
}

func (e *OrderItemsShippedEvent) EventType() string { return "erp.order.items-shipped" }
func (e *OrderItemsShippedEvent) OccurredAt() time.Time { return e.ShippedAt }

// OrderShippedEvent is published when the last item ships
type OrderShippedEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	ShippedAt   time.Time `json:"shippedAt"`
}

func (e *OrderShippedEvent) EventType() string { return "erp.order.shipped" }
func (e *OrderShippedEvent) OccurredAt() time.Time { return e.ShippedAt }

// OrderDeliveredEvent is published when delivery is confirmed
type OrderDeliveredEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func (e *OrderDeliveredEvent) EventType() string { return "erp.order.delivered" }
func (e *OrderDeliveredEvent) OccurredAt() time.Time { return e.DeliveredAt }

// OrderCompletedEvent is published when the order reaches its final state
type OrderCompletedEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *OrderCompletedEvent) EventType() string { return "erp.order.completed" }
func (e *OrderCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// OrderPaymentPostedEvent is published when a payment is recorded
type OrderPaymentPostedEvent struct {
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	Amount        float64   `json:"amount"`
	AmountPaid    float64   `json:"amountPaid"`
	Outstanding   float64   `json:"outstanding"`
	PaymentStatus string    `json:"paymentStatus"`
	PostedAt      time.Time `json:"postedAt"`
}

func (e *OrderPaymentPostedEvent) EventType() string { return "erp.order.payment-posted" }
func (e *OrderPaymentPostedEvent) OccurredAt() time.Time { return e.PostedAt }

// QuoteCreatedEvent is published when a quote is created
type QuoteCreatedEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	CustomerID  string    `json:"customerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e *QuoteCreatedEvent) EventType() string { return "erp.quote.created" }
func (e *QuoteCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// QuoteSubmittedForApprovalEvent is published when discount sign-off is required
type QuoteSubmittedForApprovalEvent struct {
	QuoteID         string    `json:"quoteId"`
	QuoteNumber     string    `json:"quoteNumber"`
	DiscountPercent float64   `json:"discountPercent"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

func (e *QuoteSubmittedForApprovalEvent) EventType() string {
	return "erp.quote.submitted-for-approval"
}
func (e *QuoteSubmittedForApprovalEvent) OccurredAt() time.Time { return e.SubmittedAt }

// QuoteApprovedEvent is published when the discount is signed off
type QuoteApprovedEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	ApprovedBy  string    `json:"approvedBy,omitempty"`
	ApprovedAt  time.Time `json:"approvedAt"`
}

func (e *QuoteApprovedEvent) EventType() string { return "erp.quote.approved" }
func (e *QuoteApprovedEvent) OccurredAt() time.Time { return e.ApprovedAt }

// QuoteSentEvent is published when the quote goes out to the customer
type QuoteSentEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	SentAt      time.Time `json:"sentAt"`
}

func (e *QuoteSentEvent) EventType() string { return "erp.quote.sent" }
func (e *QuoteSentEvent) OccurredAt() time.Time { return e.SentAt }

// QuoteAcceptedEvent is published when the customer accepts
type QuoteAcceptedEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	AcceptedAt  time.Time `json:"acceptedAt"`
}

func (e *QuoteAcceptedEvent) EventType() string { return "erp.quote.accepted" }
func (e *QuoteAcceptedEvent) OccurredAt() time.Time { return e.AcceptedAt }

// QuoteRejectedEvent is published when the quote is rejected
type QuoteRejectedEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	Reason      string    `json:"reason,omitempty"`
	RejectedAt  time.Time `json:"rejectedAt"`
}

func (e *QuoteRejectedEvent) EventType() string { return "erp.quote.rejected" }
func (e *QuoteRejectedEvent) OccurredAt() time.Time { return e.RejectedAt }

// QuoteExpiredEvent is published when the validity window passes
type QuoteExpiredEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	ExpiredAt   time.Time `json:"expiredAt"`
}

func (e *QuoteExpiredEvent) EventType() string { return "erp.quote.expired" }
func (e *QuoteExpiredEvent) OccurredAt() time.Time { return e.ExpiredAt }

// QuoteConvertedEvent is published when a quote becomes an order
type QuoteConvertedEvent struct {
	QuoteID     string    `json:"quoteId"`
	QuoteNumber string    `json:"quoteNumber"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	ConvertedAt time.Time `json:"convertedAt"`
}

func (e *QuoteConvertedEvent) EventType() string { return "erp.quote.converted" }
func (e *QuoteConvertedEvent) OccurredAt() time.Time { return e.ConvertedAt }

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the lifecycle state of a sales order
type OrderStatus string

const (
	OrderDraft            OrderStatus = "draft"
	OrderPending          OrderStatus = "pending"
	OrderConfirmed        OrderStatus = "confirmed"
	OrderInProduction     OrderStatus = "in_production"
	OrderReadyToShip      OrderStatus = "ready_to_ship"
	OrderPartiallyShipped OrderStatus = "partially_shipped"
	OrderShipped          OrderStatus = "shipped"
	OrderDelivered        OrderStatus = "delivered"
	OrderCompleted        OrderStatus = "completed"
	OrderCancelled        OrderStatus = "cancelled"
	OrderOnHold           OrderStatus = "on_hold"
)

// PaymentStatus tracks how much of the order has been paid
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

// shippableStatuses are the states in which items may leave the warehouse
var shippableStatuses = map[OrderStatus]bool{
	OrderConfirmed:        true,
	OrderInProduction:     true,
	OrderReadyToShip:      true,
	OrderPartiallyShipped: true,
}

// holdableStatuses are the states an order can be parked from
var holdableStatuses = map[OrderStatus]bool{
	OrderDraft:            true,
	OrderPending:          true,
	OrderConfirmed:        true,
	OrderInProduction:     true,
	OrderReadyToShip:      true,
	OrderPartiallyShipped: true,
}

// nonCancellableStatuses are the states cancellation is illegal from
var nonCancellableStatuses = map[OrderStatus]bool{
	OrderShipped:   true,
	OrderDelivered: true,
	OrderCompleted: true,
	OrderCancelled: true,
}

// OrderLine is a single line item on an order
type OrderLine struct {
	LineNumber      int     `bson:"lineNumber" json:"lineNumber"`
	SKU             string  `bson:"sku" json:"sku"`
	VariantID       string  `bson:"variantId,omitempty" json:"variantId,omitempty"`
	Description     string  `bson:"description,omitempty" json:"description,omitempty"`
	Quantity        int     `bson:"quantity" json:"quantity"`
	ShippedQuantity int     `bson:"shippedQuantity" json:"shippedQuantity"`
	UnitPrice       float64 `bson:"unitPrice" json:"unitPrice"`
	Discount        float64 `bson:"discount" json:"discount"`
	Total           float64 `bson:"total" json:"total"`
	ReservationID   string  `bson:"reservationId,omitempty" json:"reservationId,omitempty"`
}

// RemainingQuantity is what has not shipped yet
func (l *OrderLine) RemainingQuantity() int {
	return l.Quantity - l.ShippedQuantity
}

// AuditEntry records a single state change on the order
type AuditEntry struct {
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Action     string    `bson:"action" json:"action"`
	FromStatus string    `bson:"fromStatus,omitempty" json:"fromStatus,omitempty"`
	ToStatus   string    `bson:"toStatus,omitempty" json:"toStatus,omitempty"`
	Actor      string    `bson:"actor,omitempty" json:"actor,omitempty"`
	Note       string    `bson:"note,omitempty" json:"note,omitempty"`
}

// SalesOrder is the aggregate root for the order lifecycle
type SalesOrder struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrderID     string             `bson:"orderId" json:"orderId"`
	OrderNumber string             `bson:"orderNumber" json:"orderNumber"`
	CustomerID  string             `bson:"customerId" json:"customerId"`
	QuoteID     string             `bson:"quoteId,omitempty" json:"quoteId,omitempty"`

	Status         OrderStatus `bson:"status" json:"status"`
	PreviousStatus OrderStatus `bson:"previousStatus,omitempty" json:"previousStatus,omitempty"`
	HoldReason     string      `bson:"holdReason,omitempty" json:"holdReason,omitempty"`
	CancelReason   string      `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`

	Lines []OrderLine `bson:"lines" json:"lines"`

	Currency      string  `bson:"currency" json:"currency"`
	Subtotal      float64 `bson:"subtotal" json:"subtotal"`
	DiscountTotal float64 `bson:"discountTotal" json:"discountTotal"`
	TaxRate       float64 `bson:"taxRate" json:"taxRate"`
	TaxTotal      float64 `bson:"taxTotal" json:"taxTotal"`
	GrandTotal    float64 `bson:"grandTotal" json:"grandTotal"`

	PaymentStatus PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	AmountPaid    float64       `bson:"amountPaid" json:"amountPaid"`
	Outstanding   float64       `bson:"outstanding" json:"outstanding"`

	ItemsShipped   int `bson:"itemsShipped" json:"itemsShipped"`
	ItemsRemaining int `bson:"itemsRemaining" json:"itemsRemaining"`

	// ReservationIDs holds the live inventory reservations backing this
	// order. Cleared after release so cancellation retries stay idempotent.
	ReservationIDs []string `bson:"reservationIds,omitempty" json:"reservationIds,omitempty"`

	AuditTrail []AuditEntry `bson:"auditTrail" json:"auditTrail"`

	Version int64 `bson:"version" json:"version"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	ConfirmedAt *time.Time `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	ShippedAt   *time.Time `bson:"shippedAt,omitempty" json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CancelledAt *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewSalesOrder creates a draft order
func NewSalesOrder(orderNumber, customerID, currency string) *SalesOrder {
	now := time.Now().UTC()
	order := &SalesOrder{
		OrderID:       uuid.New().String(),
		OrderNumber:   orderNumber,
		CustomerID:    customerID,
		Status:        OrderDraft,
		Currency:      currency,
		PaymentStatus: PaymentUnpaid,
		Lines:         make([]OrderLine, 0),
		AuditTrail:    make([]AuditEntry, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
		DomainEvents:  make([]DomainEvent, 0),
	}
	order.appendAudit("created", "", string(OrderDraft), "", "")
	order.AddDomainEvent(&OrderCreatedEvent{
		OrderID:     order.OrderID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		CreatedAt:   now,
	})
	return order
}

func (o *SalesOrder) appendAudit(action, from, to, actor, note string) {
	o.AuditTrail = append(o.AuditTrail, AuditEntry{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
	})
	o.UpdatedAt = time.Now().UTC()
}

func (o *SalesOrder) transitionError(action string) error {
	return fmt.Errorf("cannot %s order %s in status %s", action, o.OrderNumber, o.Status)
}

// AddLine appends a line item. Only allowed before confirmation.
func (o *SalesOrder) AddLine(sku, variantID, description string, quantity int, unitPrice, discount float64) error {
	if o.Status != OrderDraft && o.Status != OrderPending {
		return o.transitionError("modify")
	}
	if quantity <= 0 {
		return ErrInvalidLineQuantity
	}

	line := OrderLine{
		LineNumber:  len(o.Lines) + 1,
		SKU:         sku,
		VariantID:   variantID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Discount:    discount,
	}
	line.Total = float64(line.Quantity)*line.UnitPrice - line.Discount
	o.Lines = append(o.Lines, line)
	o.recalcTotals()
	return nil
}

func (o *SalesOrder) recalcTotals() {
	o.Subtotal = 0
	o.DiscountTotal = 0
	o.ItemsRemaining = 0
	o.ItemsShipped = 0
	for _, line := range o.Lines {
		o.Subtotal += float64(line.Quantity) * line.UnitPrice
		o.DiscountTotal += line.Discount
		o.ItemsShipped += line.ShippedQuantity
		o.ItemsRemaining += line.RemainingQuantity()
	}
	o.TaxTotal = (o.Subtotal - o.DiscountTotal) * o.TaxRate
	o.GrandTotal = o.Subtotal - o.DiscountTotal + o.TaxTotal
	o.Outstanding = o.GrandTotal - o.AmountPaid
	o.UpdatedAt = time.Now().UTC()
}

// Submit moves a draft order into the review queue
func (o *SalesOrder) Submit() error {
	if o.Status != OrderDraft {
		return o.transitionError("submit")
	}
	if len(o.Lines) == 0 {
		return ErrNoLines
	}
	o.Status = OrderPending
	o.appendAudit("submitted", string(OrderDraft), string(OrderPending), "", "")
	return nil
}

// Confirm transitions a draft order to confirmed, attaching the inventory
// reservations that back it. Reservations are keyed by line number.
func (o *SalesOrder) Confirm(reservations map[int]string) error {
	if o.Status != OrderDraft {
		return o.transitionError("confirm")
	}
	if len(o.Lines) == 0 {
		return ErrNoLines
	}

	from := o.Status
	for i := range o.Lines {
		if id, ok := reservations[o.Lines[i].LineNumber]; ok {
			o.Lines[i].ReservationID = id
			o.ReservationIDs = append(o.ReservationIDs, id)
		}
	}

	now := time.Now().UTC()
	o.Status = OrderConfirmed
	o.ConfirmedAt = &now
	o.recalcTotals()
	o.appendAudit("confirmed", string(from), string(OrderConfirmed), "", "")
	o.AddDomainEvent(&OrderConfirmedEvent{
		OrderID:        o.OrderID,
		OrderNumber:    o.OrderNumber,
		CustomerID:     o.CustomerID,
		ReservationIDs: append([]string(nil), o.ReservationIDs...),
		GrandTotal:     o.GrandTotal,
		ConfirmedAt:    now,
	})
	return nil
}

// Hold parks the order, remembering where it came from
func (o *SalesOrder) Hold(reason string) error {
	if !holdableStatuses[o.Status] {
		return o.transitionError("hold")
	}
	from := o.Status
	o.PreviousStatus = from
	o.Status = OrderOnHold
	o.HoldReason = reason
	o.appendAudit("held", string(from), string(OrderOnHold), "", reason)
	o.AddDomainEvent(&OrderOnHoldEvent{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		FromStatus:  string(from),
		Reason:      reason,
		HeldAt:      time.Now().UTC(),
	})
	return nil
}

// ReleaseHold returns the order to the status it was parked from
func (o *SalesOrder) ReleaseHold() error {
	if o.Status != OrderOnHold {
		return ErrOrderNotOnHold
	}
	to := o.PreviousStatus
	if to == "" {
		to = OrderDraft
	}
	o.Status = to
	o.PreviousStatus = ""
	o.HoldReason = ""
	o.appendAudit("hold_released", string(OrderOnHold), string(to), "", "")
	o.AddDomainEvent(&OrderHoldReleasedEvent{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		ToStatus:    string(to),
		ReleasedAt:  time.Now().UTC(),
	})
	return nil
}

// StartProduction moves a confirmed order into production
func (o *SalesOrder) StartProduction() error {
	if o.Status != OrderConfirmed {
		return o.transitionError("start production for")
	}
	o.Status = OrderInProduction
	o.appendAudit("production_started", string(OrderConfirmed), string(OrderInProduction), "", "")
	return nil
}

// MarkReadyToShip flags the order as packed and awaiting carrier pickup
func (o *SalesOrder) MarkReadyToShip() error {
	if o.Status != OrderConfirmed && o.Status != OrderInProduction {
		return o.transitionError("mark ready to ship")
	}
	from := o.Status
	o.Status = OrderReadyToShip
	o.appendAudit("ready_to_ship", string(from), string(OrderReadyToShip), "", "")
	return nil
}

// ShipItems records shipments keyed by line number. The order flips to
// shipped when nothing remains, partially_shipped otherwise.
func (o *SalesOrder) ShipItems(shipments map[int]int) error {
	if !shippableStatuses[o.Status] {
		return o.transitionError("ship items for")
	}
	if len(shipments) == 0 {
		return ErrInvalidLineQuantity
	}

	// Validate everything before mutating anything
	for lineNumber, qty := range shipments {
		if qty <= 0 {
			return ErrInvalidLineQuantity
		}
		line := o.findLine(lineNumber)
		if line == nil {
			return fmt.Errorf("%w: line %d", ErrLineNotFound, lineNumber)
		}
		if qty > line.RemainingQuantity() {
			return fmt.Errorf("%w: line %d has %d remaining, got %d",
				ErrShipmentExceedsRemaining, lineNumber, line.RemainingQuantity(), qty)
		}
	}

	from := o.Status
	for lineNumber, qty := range shipments {
		line := o.findLine(lineNumber)
		line.ShippedQuantity += qty
	}
	o.recalcTotals()

	now := time.Now().UTC()
	if o.ItemsRemaining <= 0 {
		o.Status = OrderShipped
		o.ShippedAt = &now
		o.AddDomainEvent(&OrderShippedEvent{
			OrderID:     o.OrderID,
			OrderNumber: o.OrderNumber,
			ShippedAt:   now,
		})
	} else {
		o.Status = OrderPartiallyShipped
	}
	o.appendAudit("items_shipped", string(from), string(o.Status), "",
		fmt.Sprintf("%d shipped, %d remaining", o.ItemsShipped, o.ItemsRemaining))
	o.AddDomainEvent(&OrderItemsShippedEvent{
		OrderID:        o.OrderID,
		OrderNumber:    o.OrderNumber,
		Shipments:      shipments,
		ItemsShipped:   o.ItemsShipped,
		ItemsRemaining: o.ItemsRemaining,
		ShippedAt:      now,
	})
	return nil
}

func (o *SalesOrder) findLine(lineNumber int) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].LineNumber == lineNumber {
			return &o.Lines[i]
		}
	}
	return nil
}

// MarkDelivered confirms delivery of a fully shipped order
func (o *SalesOrder) MarkDelivered() error {
	if o.Status != OrderShipped {
		return o.transitionError("mark delivered")
	}
	now := time.Now().UTC()
	o.Status = OrderDelivered
	o.DeliveredAt = &now
	o.appendAudit("delivered", string(OrderShipped), string(OrderDelivered), "", "")
	o.AddDomainEvent(&OrderDeliveredEvent{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		DeliveredAt: now,
	})
	return nil
}

// Complete closes out a delivered order
func (o *SalesOrder) Complete() error {
	if o.Status != OrderDelivered {
		return o.transitionError("complete")
	}
	now := time.Now().UTC()
	o.Status = OrderCompleted
	o.CompletedAt = &now
	o.appendAudit("completed", string(OrderDelivered), string(OrderCompleted), "", "")
	o.AddDomainEvent(&OrderCompletedEvent{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		CompletedAt: now,
	})
	return nil
}

// Cancel cancels the order. Illegal once goods have shipped.
func (o *SalesOrder) Cancel(reason string) error {
	if nonCancellableStatuses[o.Status] {
		return o.transitionError("cancel")
	}
	from := o.Status
	now := time.Now().UTC()
	o.Status = OrderCancelled
	o.CancelReason = reason
	o.CancelledAt = &now
	o.appendAudit("cancelled", string(from), string(OrderCancelled), "", reason)
	o.AddDomainEvent(&OrderCancelledEvent{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		FromStatus:  string(from),
		Reason:      reason,
		CancelledAt: now,
	})
	return nil
}

// ClearReservations drops the stored reservation ids once released
func (o *SalesOrder) ClearReservations() {
	o.ReservationIDs = nil
	for i := range o.Lines {
		o.Lines[i].ReservationID = ""
	}
	o.UpdatedAt = time.Now().UTC()
}

// RecordPayment posts a payment against the order. Payment is independent
// of shipment status.
func (o *SalesOrder) RecordPayment(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if o.Status == OrderCancelled {
		return o.transitionError("record payment for")
	}

	o.AmountPaid += amount
	o.Outstanding = o.GrandTotal - o.AmountPaid
	switch {
	case o.Outstanding <= 0:
		o.PaymentStatus = PaymentPaid
	case o.AmountPaid > 0:
		o.PaymentStatus = PaymentPartiallyPaid
	}
	o.appendAudit("payment_posted", "", "", "", fmt.Sprintf("amount %.2f", amount))
	o.AddDomainEvent(&OrderPaymentPostedEvent{
		OrderID:       o.OrderID,
		OrderNumber:   o.OrderNumber,
		Amount:        amount,
		AmountPaid:    o.AmountPaid,
		Outstanding:   o.Outstanding,
		PaymentStatus: string(o.PaymentStatus),
		PostedAt:      time.Now().UTC(),
	})
	return nil
}

// IsTerminal reports whether the order can change state again
func (o *SalesOrder) IsTerminal() bool {
	return o.Status == OrderCompleted || o.Status == OrderCancelled
}

// AddDomainEvent adds a domain event to the aggregate
func (o *SalesOrder) AddDomainEvent(event DomainEvent) {
	o.DomainEvents = append(o.DomainEvents, event)
}

// ClearDomainEvents clears all domain events after they have been dispatched
func (o *SalesOrder) ClearDomainEvents() {
	o.DomainEvents = make([]DomainEvent, 0)
}

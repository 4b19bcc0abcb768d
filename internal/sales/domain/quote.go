package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QuoteStatus is the lifecycle state of a sales quote
type QuoteStatus string

const (
	QuoteDraft           QuoteStatus = "draft"
	QuotePendingApproval QuoteStatus = "pending_approval"
	QuoteApproved        QuoteStatus = "approved"
	QuoteSent            QuoteStatus = "sent"
	QuoteAccepted        QuoteStatus = "accepted"
	QuoteRejected        QuoteStatus = "rejected"
	QuoteExpired         QuoteStatus = "expired"
	QuoteConverted       QuoteStatus = "converted"
)

// expirableStatuses are the states a quote can lapse from
var expirableStatuses = map[QuoteStatus]bool{
	QuoteDraft:           true,
	QuotePendingApproval: true,
	QuoteApproved:        true,
	QuoteSent:            true,
}

// SalesQuote is the aggregate root for the quoting lifecycle. A quote whose
// overall discount exceeds the configured threshold must pass an approval
// workflow before it can be sent.
type SalesQuote struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	QuoteID     string             `bson:"quoteId" json:"quoteId"`
	QuoteNumber string             `bson:"quoteNumber" json:"quoteNumber"`
	CustomerID  string             `bson:"customerId" json:"customerId"`

	Status QuoteStatus `bson:"status" json:"status"`

	Lines []OrderLine `bson:"lines" json:"lines"`

	Currency        string  `bson:"currency" json:"currency"`
	DiscountPercent float64 `bson:"discountPercent" json:"discountPercent"`
	Subtotal        float64 `bson:"subtotal" json:"subtotal"`
	DiscountTotal   float64 `bson:"discountTotal" json:"discountTotal"`
	TaxRate         float64 `bson:"taxRate" json:"taxRate"`
	TaxTotal        float64 `bson:"taxTotal" json:"taxTotal"`
	GrandTotal      float64 `bson:"grandTotal" json:"grandTotal"`

	ValidUntil *time.Time `bson:"validUntil,omitempty" json:"validUntil,omitempty"`

	ApprovalWorkflowID string `bson:"approvalWorkflowId,omitempty" json:"approvalWorkflowId,omitempty"`
	ConvertedOrderID   string `bson:"convertedOrderId,omitempty" json:"convertedOrderId,omitempty"`
	RejectReason       string `bson:"rejectReason,omitempty" json:"rejectReason,omitempty"`

	AuditTrail []AuditEntry `bson:"auditTrail" json:"auditTrail"`

	Version int64 `bson:"version" json:"version"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	ApprovedAt  *time.Time `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	SentAt      *time.Time `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	AcceptedAt  *time.Time `bson:"acceptedAt,omitempty" json:"acceptedAt,omitempty"`
	ConvertedAt *time.Time `bson:"convertedAt,omitempty" json:"convertedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewSalesQuote creates a draft quote
func NewSalesQuote(quoteNumber, customerID, currency string) *SalesQuote {
	now := time.Now().UTC()
	quote := &SalesQuote{
		QuoteID:      uuid.New().String(),
		QuoteNumber:  quoteNumber,
		CustomerID:   customerID,
		Status:       QuoteDraft,
		Currency:     currency,
		Lines:        make([]OrderLine, 0),
		AuditTrail:   make([]AuditEntry, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}
	quote.appendAudit("created", "", string(QuoteDraft), "", "")
	quote.AddDomainEvent(&QuoteCreatedEvent{
		QuoteID:     quote.QuoteID,
		QuoteNumber: quote.QuoteNumber,
		CustomerID:  quote.CustomerID,
		CreatedAt:   now,
	})
	return quote
}

func (q *SalesQuote) appendAudit(action, from, to, actor, note string) {
	q.AuditTrail = append(q.AuditTrail, AuditEntry{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
	})
	q.UpdatedAt = time.Now().UTC()
}

func (q *SalesQuote) transitionError(action string) error {
	return fmt.Errorf("cannot %s quote %s in status %s", action, q.QuoteNumber, q.Status)
}

// AddLine appends a line item. Only allowed while still a draft.
func (q *SalesQuote) AddLine(sku, variantID, description string, quantity int, unitPrice, discount float64) error {
	if q.Status != QuoteDraft {
		return q.transitionError("modify")
	}
	if quantity <= 0 {
		return ErrInvalidLineQuantity
	}

	line := OrderLine{
		LineNumber:  len(q.Lines) + 1,
		SKU:         sku,
		VariantID:   variantID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Discount:    discount,
	}
	line.Total = float64(line.Quantity)*line.UnitPrice - line.Discount
	q.Lines = append(q.Lines, line)
	q.recalcTotals()
	return nil
}

// SetDiscountPercent applies an overall percentage discount on top of line
// discounts. Only allowed while still a draft.
func (q *SalesQuote) SetDiscountPercent(percent float64) error {
	if q.Status != QuoteDraft {
		return q.transitionError("modify")
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("invalid discount percent %.2f", percent)
	}
	q.DiscountPercent = percent
	q.recalcTotals()
	return nil
}

// SetValidUntil sets the validity deadline of the quote
func (q *SalesQuote) SetValidUntil(deadline time.Time) {
	q.ValidUntil = &deadline
	q.UpdatedAt = time.Now().UTC()
}

func (q *SalesQuote) recalcTotals() {
	q.Subtotal = 0
	lineDiscounts := 0.0
	for _, line := range q.Lines {
		q.Subtotal += float64(line.Quantity) * line.UnitPrice
		lineDiscounts += line.Discount
	}
	q.DiscountTotal = lineDiscounts + (q.Subtotal-lineDiscounts)*q.DiscountPercent/100
	q.TaxTotal = (q.Subtotal - q.DiscountTotal) * q.TaxRate
	q.GrandTotal = q.Subtotal - q.DiscountTotal + q.TaxTotal
	q.UpdatedAt = time.Now().UTC()
}

// RequiresApproval reports whether the discount needs sign-off before sending
func (q *SalesQuote) RequiresApproval(threshold float64) bool {
	return q.DiscountPercent > threshold
}

// SubmitForApproval routes a draft quote into the approval workflow
func (q *SalesQuote) SubmitForApproval(workflowID string) error {
	if q.Status != QuoteDraft {
		return q.transitionError("submit")
	}
	if len(q.Lines) == 0 {
		return ErrNoLines
	}
	q.Status = QuotePendingApproval
	q.ApprovalWorkflowID = workflowID
	q.appendAudit("submitted_for_approval", string(QuoteDraft), string(QuotePendingApproval), "", "")
	q.AddDomainEvent(&QuoteSubmittedForApprovalEvent{
		QuoteID:         q.QuoteID,
		QuoteNumber:     q.QuoteNumber,
		DiscountPercent: q.DiscountPercent,
		SubmittedAt:     time.Now().UTC(),
	})
	return nil
}

// Approve records the discount sign-off
func (q *SalesQuote) Approve(approvedBy string) error {
	if q.Status != QuotePendingApproval {
		return q.transitionError("approve")
	}
	now := time.Now().UTC()
	q.Status = QuoteApproved
	q.ApprovedAt = &now
	q.appendAudit("approved", string(QuotePendingApproval), string(QuoteApproved), approvedBy, "")
	q.AddDomainEvent(&QuoteApprovedEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		ApprovedBy:  approvedBy,
		ApprovedAt:  now,
	})
	return nil
}

// MarkSent records the quote going out to the customer. A draft quote may be
// sent directly only when no approval is pending; callers enforce the
// discount threshold before choosing this path.
func (q *SalesQuote) MarkSent() error {
	if q.Status != QuoteDraft && q.Status != QuoteApproved {
		return q.transitionError("send")
	}
	if len(q.Lines) == 0 {
		return ErrNoLines
	}
	from := q.Status
	now := time.Now().UTC()
	q.Status = QuoteSent
	q.SentAt = &now
	q.appendAudit("sent", string(from), string(QuoteSent), "", "")
	q.AddDomainEvent(&QuoteSentEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		SentAt:      now,
	})
	return nil
}

// Accept records customer acceptance
func (q *SalesQuote) Accept() error {
	if q.Status != QuoteSent {
		return q.transitionError("accept")
	}
	if q.ValidUntil != nil && time.Now().UTC().After(*q.ValidUntil) {
		return ErrQuoteExpired
	}
	now := time.Now().UTC()
	q.Status = QuoteAccepted
	q.AcceptedAt = &now
	q.appendAudit("accepted", string(QuoteSent), string(QuoteAccepted), "", "")
	q.AddDomainEvent(&QuoteAcceptedEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		AcceptedAt:  now,
	})
	return nil
}

// Reject records rejection by the customer or by the approval workflow
func (q *SalesQuote) Reject(reason string) error {
	if q.Status != QuoteSent && q.Status != QuotePendingApproval {
		return q.transitionError("reject")
	}
	from := q.Status
	q.Status = QuoteRejected
	q.RejectReason = reason
	q.appendAudit("rejected", string(from), string(QuoteRejected), "", reason)
	q.AddDomainEvent(&QuoteRejectedEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		Reason:      reason,
		RejectedAt:  time.Now().UTC(),
	})
	return nil
}

// MarkExpired flags a quote whose validity window has passed
func (q *SalesQuote) MarkExpired() error {
	if !expirableStatuses[q.Status] {
		return q.transitionError("expire")
	}
	from := q.Status
	q.Status = QuoteExpired
	q.appendAudit("expired", string(from), string(QuoteExpired), "", "")
	q.AddDomainEvent(&QuoteExpiredEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		ExpiredAt:   time.Now().UTC(),
	})
	return nil
}

// IsPastValidity reports whether an open quote has lapsed
func (q *SalesQuote) IsPastValidity(now time.Time) bool {
	return expirableStatuses[q.Status] && q.ValidUntil != nil && now.After(*q.ValidUntil)
}

// ConvertToOrder builds a sales order from an accepted quote, copying the
// customer, line items, and totals. The quote flips to converted and links
// the order it produced.
func (q *SalesQuote) ConvertToOrder(orderNumber string) (*SalesOrder, error) {
	if q.Status != QuoteAccepted {
		return nil, q.transitionError("convert")
	}

	order := NewSalesOrder(orderNumber, q.CustomerID, q.Currency)
	order.QuoteID = q.QuoteID
	order.TaxRate = q.TaxRate
	for _, line := range q.Lines {
		// Fold the quote-level percentage discount into each line so the
		// order's totals match the quote's
		discount := line.Discount + (float64(line.Quantity)*line.UnitPrice-line.Discount)*q.DiscountPercent/100
		if err := order.AddLine(line.SKU, line.VariantID, line.Description, line.Quantity, line.UnitPrice, discount); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	q.Status = QuoteConverted
	q.ConvertedOrderID = order.OrderID
	q.ConvertedAt = &now
	q.appendAudit("converted", string(QuoteAccepted), string(QuoteConverted), "", "order "+orderNumber)
	q.AddDomainEvent(&QuoteConvertedEvent{
		QuoteID:     q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		OrderID:     order.OrderID,
		OrderNumber: orderNumber,
		ConvertedAt: now,
	})
	return order, nil
}

// AddDomainEvent adds a domain event to the aggregate
func (q *SalesQuote) AddDomainEvent(event DomainEvent) {
	q.DomainEvents = append(q.DomainEvents, event)
}

// ClearDomainEvents clears all domain events after they have been dispatched
func (q *SalesQuote) ClearDomainEvents() {
	q.DomainEvents = make([]DomainEvent, 0)
}

package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for ERP domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new CloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}
}

// CreateEventWithCorrelation creates an event with correlation tracking
func (f *EventFactory) CreateEventWithCorrelation(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
	correlationID string,
) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.CorrelationID = correlationID
	return event
}

// CreateOrderConfirmedEvent creates an OrderConfirmed event
func (f *EventFactory) CreateOrderConfirmedEvent(
	ctx context.Context,
	orderID string,
	orderNumber string,
	customerID string,
	reservationIDs []string,
	totalAmount float64,
) *CloudEvent {
	data := OrderConfirmedData{
		OrderID:        orderID,
		OrderNumber:    orderNumber,
		CustomerID:     customerID,
		ReservationIDs: reservationIDs,
		TotalAmount:    totalAmount,
	}
	event := f.CreateEvent(ctx, OrderConfirmed, "order/"+orderID, data)
	event.OrderNumber = orderNumber
	return event
}

// CreateStockAdjustedEvent creates a StockAdjusted event
func (f *EventFactory) CreateStockAdjustedEvent(
	ctx context.Context,
	sku string,
	locationID string,
	previousQty int,
	newQty int,
	movementType string,
	reason string,
) *CloudEvent {
	data := StockAdjustedData{
		SKU:          sku,
		LocationID:   locationID,
		PreviousQty:  previousQty,
		NewQty:       newQty,
		MovementType: movementType,
		Reason:       reason,
	}
	return f.CreateEvent(ctx, StockAdjusted, "stock/"+sku, data)
}

// CreateStockReservedEvent creates a StockReserved event
func (f *EventFactory) CreateStockReservedEvent(
	ctx context.Context,
	reservationID string,
	sku string,
	quantity int,
	reference string,
) *CloudEvent {
	data := StockReservedData{
		ReservationID: reservationID,
		SKU:           sku,
		Quantity:      quantity,
		Reference:     reference,
	}
	return f.CreateEvent(ctx, StockReserved, "reservation/"+reservationID, data)
}

// CreateApprovalDecidedEvent creates a terminal approval event
func (f *EventFactory) CreateApprovalDecidedEvent(
	ctx context.Context,
	eventType string,
	workflowID string,
	subjectType string,
	subjectID string,
	finalDecision string,
	decidedBy string,
) *CloudEvent {
	data := ApprovalDecidedData{
		WorkflowID:    workflowID,
		SubjectType:   subjectType,
		SubjectID:     subjectID,
		FinalDecision: finalDecision,
		DecidedBy:     decidedBy,
	}
	return f.CreateEvent(ctx, eventType, "approval/"+workflowID, data)
}

package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/cloudevents"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

// reservationExpiry is how long order reservations are held before the
// background sweeper may reclaim them
const reservationExpiry = 7 * 24 * time.Hour

// OrderService implements the application layer for the order lifecycle
type OrderService struct {
	orders      domain.OrderRepository
	coordinator *ReservationCoordinator
	outboxRepo  outbox.Repository
	events      *cloudevents.EventFactory
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orders domain.OrderRepository,
	coordinator *ReservationCoordinator,
	outboxRepo outbox.Repository,
	logger *logging.Logger,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		orders:      orders,
		coordinator: coordinator,
		outboxRepo:  outboxRepo,
		events:      cloudevents.NewEventFactory(cloudevents.SourceSales),
		logger:      logger.WithComponent("order-service"),
		metrics:     m,
	}
}

func (s *OrderService) enqueueEvents(ctx context.Context, order *domain.SalesOrder) {
	for _, event := range order.DomainEvents {
		ce := s.events.CreateEventWithCorrelation(ctx, event.EventType(), "order/"+order.OrderID, event, logging.CorrelationIDFromContext(ctx))
		ce.OrderNumber = order.OrderNumber
		outboxEvent, err := outbox.NewOutboxEvent(order.OrderID, "sales_order", kafka.Topics.SalesEvents, ce)
		if err != nil {
			s.logger.WithError(err).Error("Failed to build outbox event", "eventType", event.EventType())
			continue
		}
		if err := s.outboxRepo.Save(ctx, outboxEvent); err != nil {
			s.logger.WithError(err).Error("Failed to enqueue outbox event", "eventType", event.EventType())
		}
	}
	order.ClearDomainEvents()
}

func (s *OrderService) save(ctx context.Context, order *domain.SalesOrder) error {
	if err := s.orders.Save(ctx, order); err != nil {
		if err == domain.ErrVersionConflict {
			return errors.ErrConflict("order was modified concurrently").Wrap(err)
		}
		return errors.ErrInternal("failed to save order").Wrap(err)
	}
	s.enqueueEvents(ctx, order)
	return nil
}

func (s *OrderService) load(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find order").Wrap(err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", orderID)
	}
	return order, nil
}

// OrderLineInput is one line of a new order or quote
type OrderLineInput struct {
	SKU         string
	VariantID   string
	Description string
	Quantity    int
	UnitPrice   float64
	Discount    float64
}

// CreateOrderCommand creates a new draft order
type CreateOrderCommand struct {
	CustomerID string
	Currency   string
	TaxRate    float64
	Lines      []OrderLineInput
}

// CreateOrder creates a draft order with its line items
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.SalesOrder, error) {
	currency := cmd.Currency
	if currency == "" {
		currency = "USD"
	}

	orderNumber := fmt.Sprintf("SO-%s", strings.ToUpper(uuid.New().String()[:8]))
	order := domain.NewSalesOrder(orderNumber, cmd.CustomerID, currency)
	order.TaxRate = cmd.TaxRate

	for _, line := range cmd.Lines {
		if err := order.AddLine(line.SKU, line.VariantID, line.Description, line.Quantity, line.UnitPrice, line.Discount); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Created order",
		"orderId", order.OrderID,
		"orderNumber", order.OrderNumber,
		"customerId", order.CustomerID,
		"lines", len(order.Lines),
	)
	return order, nil
}

// GetOrder returns an order by its business id
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	return s.load(ctx, orderID)
}

// ListOrders returns orders matching the filter
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.SalesOrder, int64, error) {
	orders, err := s.orders.Find(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to list orders").Wrap(err)
	}
	total, err := s.orders.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to count orders").Wrap(err)
	}
	return orders, total, nil
}

// SubmitOrder moves a draft order into the review queue
func (s *OrderService) SubmitOrder(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Submit(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmOrder reserves inventory for every line and confirms the order.
// When reservation fails the order is parked on hold with the failure
// recorded, not returned to draft, and the reservation error is re-raised.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Guard before touching inventory so an illegal confirm reserves nothing
	if order.Status != domain.OrderDraft {
		return nil, errors.MapDomainError(
			fmt.Errorf("cannot confirm order %s in status %s", order.OrderNumber, order.Status))
	}
	if len(order.Lines) == 0 {
		return nil, errors.MapDomainError(domain.ErrNoLines)
	}

	expiresAt := time.Now().UTC().Add(reservationExpiry)
	reservations, reserveErr := s.coordinator.ReserveOrderInventory(ctx, order, &expiresAt)
	if reserveErr != nil {
		if holdErr := order.Hold(reserveErr.Error()); holdErr != nil {
			s.logger.WithError(holdErr).Error("Failed to hold order after reservation failure",
				"orderId", order.OrderID,
			)
		} else if saveErr := s.save(ctx, order); saveErr != nil {
			s.logger.WithError(saveErr).Error("Failed to save held order",
				"orderId", order.OrderID,
			)
		}
		s.metrics.RecordOrderConfirmed("reservation_failed")
		return nil, reserveErr
	}

	if err := order.Confirm(reservations); err != nil {
		// Should not happen past the guard above; give the stock back
		if relErr := s.coordinator.ReleaseOrderInventory(ctx, order); relErr != nil {
			s.logger.WithError(relErr).Error("Failed to release after confirm failure",
				"orderId", order.OrderID,
			)
		}
		return nil, errors.MapDomainError(err)
	}

	if err := s.save(ctx, order); err != nil {
		// The stored order is still draft; give the stock back rather
		// than leaving the reservations to age out
		if relErr := s.coordinator.ReleaseOrderInventory(ctx, order); relErr != nil {
			s.logger.WithError(relErr).Error("Failed to release after save failure",
				"orderId", order.OrderID,
			)
		}
		return nil, err
	}

	s.metrics.RecordOrderConfirmed("confirmed")
	s.logger.Info("Confirmed order",
		"orderId", order.OrderID,
		"orderNumber", order.OrderNumber,
		"reservations", len(reservations),
	)
	return order, nil
}

// CancelOrder cancels the order and releases its reservations. Release is
// best-effort; a release failure is logged but does not block cancellation.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	fromStatus := string(order.Status)
	if err := order.Cancel(reason); err != nil {
		return nil, errors.MapDomainError(err)
	}

	if err := s.coordinator.ReleaseOrderInventory(ctx, order); err != nil {
		s.logger.WithError(err).Error("Best-effort reservation release failed on cancel",
			"orderId", order.OrderID,
		)
	} else {
		order.ClearReservations()
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCancelled(fromStatus)
	s.logger.Info("Cancelled order",
		"orderId", order.OrderID,
		"orderNumber", order.OrderNumber,
		"fromStatus", fromStatus,
		"reason", reason,
	)
	return order, nil
}

// HoldOrder parks the order with a reason
func (s *OrderService) HoldOrder(ctx context.Context, orderID, reason string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Hold(reason); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ReleaseOrderHold lifts a hold, returning the order to its prior status
func (s *OrderService) ReleaseOrderHold(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.ReleaseHold(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// StartProduction moves a confirmed order into production
func (s *OrderService) StartProduction(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.StartProduction(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkReadyToShip flags the order as packed
func (s *OrderService) MarkReadyToShip(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.MarkReadyToShip(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ShipOrderItemsCommand ships quantities keyed by line number
type ShipOrderItemsCommand struct {
	OrderID   string
	Shipments map[int]int
}

// ShipOrderItems records shipments and consumes the reservations of lines
// that are now fully shipped. Consumption failures do not undo the shipment.
func (s *OrderService) ShipOrderItems(ctx context.Context, cmd ShipOrderItemsCommand) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if err := order.ShipItems(cmd.Shipments); err != nil {
		return nil, errors.MapDomainError(err)
	}

	// Consume reservations for lines with nothing left to ship
	var completedLines []int
	for lineNumber := range cmd.Shipments {
		for i := range order.Lines {
			line := &order.Lines[i]
			if line.LineNumber == lineNumber && line.RemainingQuantity() == 0 && line.ReservationID != "" {
				completedLines = append(completedLines, lineNumber)
			}
		}
	}
	if len(completedLines) > 0 {
		if err := s.coordinator.ConsumeLineReservations(ctx, order, completedLines); err != nil {
			s.logger.WithError(err).Error("Reservation consumption incomplete after shipment",
				"orderId", order.OrderID,
			)
		}
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Shipped order items",
		"orderId", order.OrderID,
		"orderNumber", order.OrderNumber,
		"status", order.Status,
		"itemsRemaining", order.ItemsRemaining,
	)
	return order, nil
}

// MarkDelivered confirms delivery
func (s *OrderService) MarkDelivered(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.MarkDelivered(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteOrder closes out a delivered order
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Complete(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// RecordPaymentCommand posts a payment against an order
type RecordPaymentCommand struct {
	OrderID string
	Amount  float64
}

// RecordPayment posts a payment. Payment state is independent of shipment state.
func (s *OrderService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*domain.SalesOrder, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.RecordPayment(cmd.Amount); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Recorded payment",
		"orderId", order.OrderID,
		"amount", cmd.Amount,
		"paymentStatus", order.PaymentStatus,
		"outstanding", order.Outstanding,
	)
	return order, nil
}

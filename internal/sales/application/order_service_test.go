package application

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

type orderFixture struct {
	service *OrderService
	orders  *fakeOrderRepo
	gateway *fakeInventoryGateway
	outbox  *fakeOutboxRepo
}

func newOrderFixture(t *testing.T, available map[string]int) *orderFixture {
	t.Helper()
	orders := newFakeOrderRepo()
	gateway := newFakeInventoryGateway(available)
	outboxRepo := newFakeOutboxRepo()
	logger := logging.New(logging.DefaultConfig("sales-test"))
	m := metrics.New(metrics.DefaultConfig("sales-test"))

	service := NewOrderService(
		orders,
		NewReservationCoordinator(gateway, logger, m),
		outboxRepo,
		logger,
		m,
	)
	return &orderFixture{service: service, orders: orders, gateway: gateway, outbox: outboxRepo}
}

func (f *orderFixture) createOrder(t *testing.T, lines ...OrderLineInput) *domain.SalesOrder {
	t.Helper()
	order, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID: "CUST-1",
		Lines:      lines,
	})
	require.NoError(t, err)
	return order
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.HTTPStatus
}

func TestCreateOrder(t *testing.T) {
	f := newOrderFixture(t, nil)

	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	assert.Equal(t, domain.OrderDraft, order.Status)
	assert.Contains(t, order.OrderNumber, "SO-")
	assert.Equal(t, 100.0, order.GrandTotal)
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.created")

	stored, err := f.orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.Version)
}

func TestConfirmOrderReservesAllLines(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100, "SKU-B": 50})
	order := f.createOrder(t,
		OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0},
		OrderLineInput{SKU: "SKU-B", Quantity: 5, UnitPrice: 20.0},
	)

	confirmed, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderConfirmed, confirmed.Status)
	assert.Len(t, confirmed.ReservationIDs, 2)
	for _, line := range confirmed.Lines {
		assert.NotEmpty(t, line.ReservationID)
	}
	assert.Equal(t, 90, f.gateway.available["SKU-A"])
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.confirmed")
}

func TestConfirmOrderInsufficientStockParksOnHold(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100, "SKU-B": 2})
	order := f.createOrder(t,
		OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0},
		OrderLineInput{SKU: "SKU-B", Quantity: 5, UnitPrice: 20.0},
	)

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))

	stored, findErr := f.orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.OrderOnHold, stored.Status)
	assert.Contains(t, stored.HoldReason, "insufficient stock")
	assert.Empty(t, stored.ReservationIDs)

	// The partial reservation on SKU-A was rolled back
	assert.Equal(t, 100, f.gateway.available["SKU-A"])
	assert.Equal(t, 0, f.gateway.activeReservations())
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.on-hold")
}

func TestConfirmOrderOnlyFromDraft(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.SubmitOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	_, err = f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))

	// The guard fired before inventory was touched
	assert.Empty(t, f.gateway.reserveCalls)
}

func TestConfirmOrderWithoutLinesRejected(t *testing.T) {
	f := newOrderFixture(t, nil)
	order := f.createOrder(t)

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.Error(t, err)
	assert.Empty(t, f.gateway.reserveCalls)
}

func TestReleaseOrderHoldAfterReservationFailure(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 2})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.Error(t, err)

	released, err := f.service.ReleaseOrderHold(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDraft, released.Status)

	// Restock and the same order confirms cleanly
	f.gateway.available["SKU-A"] = 50
	confirmed, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, confirmed.Status)
}

func TestCancelOrderReleasesReservations(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	cancelled, err := f.service.CancelOrder(context.Background(), order.OrderID, "customer withdrew")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Empty(t, cancelled.ReservationIDs)
	assert.Equal(t, 100, f.gateway.available["SKU-A"])
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.cancelled")
}

func TestCancelOrderSurvivesReleaseFailure(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	f.gateway.failRelease = true
	cancelled, err := f.service.CancelOrder(context.Background(), order.OrderID, "customer withdrew")
	require.NoError(t, err)

	// Cancellation stands; the reservation ids stay on the order for the sweeper
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.NotEmpty(t, cancelled.ReservationIDs)
}

func TestCancelOrderAfterShipmentRejected(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	_, err = f.service.ShipOrderItems(context.Background(), ShipOrderItemsCommand{
		OrderID:   order.OrderID,
		Shipments: map[int]int{1: 10},
	})
	require.NoError(t, err)

	_, err = f.service.CancelOrder(context.Background(), order.OrderID, "too late")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
}

func TestShipOrderItemsConsumesCompletedLines(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100, "SKU-B": 50})
	order := f.createOrder(t,
		OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0},
		OrderLineInput{SKU: "SKU-B", Quantity: 5, UnitPrice: 20.0},
	)

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	// Ship line 1 completely and line 2 partially
	shipped, err := f.service.ShipOrderItems(context.Background(), ShipOrderItemsCommand{
		OrderID:   order.OrderID,
		Shipments: map[int]int{1: 10, 2: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPartiallyShipped, shipped.Status)
	assert.Equal(t, 2, shipped.ItemsRemaining)
	assert.Len(t, f.gateway.consumed, 1)

	// Finish line 2
	shipped, err = f.service.ShipOrderItems(context.Background(), ShipOrderItemsCommand{
		OrderID:   order.OrderID,
		Shipments: map[int]int{2: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderShipped, shipped.Status)
	assert.Equal(t, 0, shipped.ItemsRemaining)
	assert.Len(t, f.gateway.consumed, 2)
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.shipped")
}

func TestShipOrderItemsConsumeFailureDoesNotUndoShipment(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.NoError(t, err)

	f.gateway.failConsume = true
	shipped, err := f.service.ShipOrderItems(context.Background(), ShipOrderItemsCommand{
		OrderID:   order.OrderID,
		Shipments: map[int]int{1: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, shipped.Status)
}

func TestRecordPaymentIndependentOfShipment(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	paid, err := f.service.RecordPayment(context.Background(), RecordPaymentCommand{
		OrderID: order.OrderID,
		Amount:  40.0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartiallyPaid, paid.PaymentStatus)
	assert.Equal(t, 60.0, paid.Outstanding)

	paid, err = f.service.RecordPayment(context.Background(), RecordPaymentCommand{
		OrderID: order.OrderID,
		Amount:  60.0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderDraft, paid.Status)
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.payment-posted")
}

func TestOrderLifecycleThroughCompletion(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})
	ctx := context.Background()

	_, err := f.service.ConfirmOrder(ctx, order.OrderID)
	require.NoError(t, err)
	_, err = f.service.StartProduction(ctx, order.OrderID)
	require.NoError(t, err)
	_, err = f.service.MarkReadyToShip(ctx, order.OrderID)
	require.NoError(t, err)
	_, err = f.service.ShipOrderItems(ctx, ShipOrderItemsCommand{
		OrderID:   order.OrderID,
		Shipments: map[int]int{1: 10},
	})
	require.NoError(t, err)
	_, err = f.service.MarkDelivered(ctx, order.OrderID)
	require.NoError(t, err)

	completed, err := f.service.CompleteOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, completed.Status)
	assert.Contains(t, f.outbox.eventTypes(), "erp.order.completed")
}

func TestOrderSaveConflictMapsToConflictError(t *testing.T) {
	f := newOrderFixture(t, nil)
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	f.orders.failSavesWithConflict = 1
	_, err := f.service.SubmitOrder(context.Background(), order.OrderID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
}

func TestConfirmOrderSaveConflictReleasesReservations(t *testing.T) {
	f := newOrderFixture(t, map[string]int{"SKU-A": 100})
	order := f.createOrder(t, OrderLineInput{SKU: "SKU-A", Quantity: 10, UnitPrice: 10.0})

	f.orders.failSavesWithConflict = 1
	_, err := f.service.ConfirmOrder(context.Background(), order.OrderID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httpStatus(t, err))

	// The stored order never left draft, so the acquired stock went back
	stored, findErr := f.orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.OrderDraft, stored.Status)
	assert.Equal(t, 100, f.gateway.available["SKU-A"])
	assert.Equal(t, 0, f.gateway.activeReservations())
}

func TestGetOrderNotFound(t *testing.T) {
	f := newOrderFixture(t, nil)

	_, err := f.service.GetOrder(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
}

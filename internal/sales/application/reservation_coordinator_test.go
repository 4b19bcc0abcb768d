package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

func newCoordinator(gateway *fakeInventoryGateway) *ReservationCoordinator {
	return NewReservationCoordinator(
		gateway,
		logging.New(logging.DefaultConfig("sales-test")),
		metrics.New(metrics.DefaultConfig("sales-test")),
	)
}

type lineSpec struct {
	sku string
	qty int
}

func buildOrderWithLines(t *testing.T, lines ...lineSpec) *domain.SalesOrder {
	t.Helper()
	order := domain.NewSalesOrder("SO-9001", "CUST-1", "USD")
	for _, l := range lines {
		require.NoError(t, order.AddLine(l.sku, "", l.sku, l.qty, 10.0, 0))
	}
	return order
}

func TestLineReference(t *testing.T) {
	assert.Equal(t, "ORDER-SO-1001-LINE-3", LineReference("SO-1001", 3))
}

func TestReserveOrderInventoryAllLines(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100, "SKU-B": 50})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10}, lineSpec{"SKU-B", 5})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)

	require.Len(t, reservations, 2)
	assert.NotEmpty(t, reservations[1])
	assert.NotEmpty(t, reservations[2])
	assert.Equal(t, 90, gateway.available["SKU-A"])
	assert.Equal(t, 45, gateway.available["SKU-B"])
	assert.Equal(t, []string{"SKU-A", "SKU-B"}, gateway.reserveCalls)
}

func TestReserveOrderInventoryAllOrNothing(t *testing.T) {
	// SKU-B is short; the earlier SKU-A reservation must be rolled back
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100, "SKU-B": 2, "SKU-C": 100})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10}, lineSpec{"SKU-B", 5}, lineSpec{"SKU-C", 1})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.Error(t, err)
	assert.Nil(t, reservations)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeValidationError, appErr.Code)
	assert.Contains(t, appErr.Message, "SO-9001")
	assert.Contains(t, appErr.Message, "line 2")

	// Rollback restored SKU-A; the failing line stopped the walk before SKU-C
	assert.Equal(t, 100, gateway.available["SKU-A"])
	assert.Equal(t, []string{"SKU-A", "SKU-B"}, gateway.reserveCalls)
	assert.Equal(t, 0, gateway.activeReservations())
	assert.Len(t, gateway.released, 1)
}

func TestReserveOrderInventorySkipsEmptySKU(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100})
	coordinator := newCoordinator(gateway)

	order := domain.NewSalesOrder("SO-9001", "CUST-1", "USD")
	require.NoError(t, order.AddLine("SKU-A", "", "Widget", 10, 10.0, 0))
	require.NoError(t, order.AddLine("", "", "Handling fee", 1, 25.0, 0))

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
}

func TestReleaseOrderInventory(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)
	require.NoError(t, order.Confirm(reservations))

	require.NoError(t, coordinator.ReleaseOrderInventory(context.Background(), order))
	assert.Equal(t, 100, gateway.available["SKU-A"])
	assert.Equal(t, 0, gateway.activeReservations())
}

func TestReleaseOrderInventoryCollectsFailures(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)
	require.NoError(t, order.Confirm(reservations))

	gateway.failRelease = true
	err = coordinator.ReleaseOrderInventory(context.Background(), order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1")
}

func TestConsumeLineReservations(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100, "SKU-B": 50})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10}, lineSpec{"SKU-B", 5})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)
	require.NoError(t, order.Confirm(reservations))

	require.NoError(t, coordinator.ConsumeLineReservations(context.Background(), order, []int{1}))
	assert.Len(t, gateway.consumed, 1)
	assert.Equal(t, 1, gateway.activeReservations())
}

func TestConsumeLineReservationsContinuesPastFailures(t *testing.T) {
	gateway := newFakeInventoryGateway(map[string]int{"SKU-A": 100, "SKU-B": 50})
	coordinator := newCoordinator(gateway)
	order := buildOrderWithLines(t, lineSpec{"SKU-A", 10}, lineSpec{"SKU-B", 5})

	reservations, err := coordinator.ReserveOrderInventory(context.Background(), order, nil)
	require.NoError(t, err)
	require.NoError(t, order.Confirm(reservations))

	gateway.failConsume = true
	err = coordinator.ConsumeLineReservations(context.Background(), order, []int{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "line 2")
}

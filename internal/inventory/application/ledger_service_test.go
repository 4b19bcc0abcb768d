package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

type ledgerFixture struct {
	service      *LedgerService
	levels       *fakeStockLevelRepo
	movements    *fakeMovementRepo
	reservations *fakeReservationRepo
	outbox       *fakeOutboxRepo
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	levels := newFakeStockLevelRepo()
	movements := newFakeMovementRepo()
	reservations := newFakeReservationRepo()
	outboxRepo := newFakeOutboxRepo()

	service := NewLedgerService(
		levels,
		movements,
		reservations,
		outboxRepo,
		logging.New(logging.DefaultConfig("inventory-test")),
		metrics.New(metrics.DefaultConfig("inventory-test")),
	)

	return &ledgerFixture{
		service:      service,
		levels:       levels,
		movements:    movements,
		reservations: reservations,
		outbox:       outboxRepo,
	}
}

func (f *ledgerFixture) seedStock(t *testing.T, sku, locationID string, quantity int) {
	t.Helper()
	_, err := f.service.ReceiveStock(context.Background(), ReceiveStockCommand{
		SKU:        sku,
		LocationID: locationID,
		Quantity:   quantity,
		UnitCost:   1.0,
		Reference:  "SEED",
	})
	require.NoError(t, err)
}

func TestReceiveStock(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	movement, err := f.service.ReceiveStock(ctx, ReceiveStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Quantity:   100,
		UnitCost:   2.5,
		Reference:  "PO-1001",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MovementReceipt, movement.Type)
	assert.Equal(t, 0, movement.QuantityBefore)
	assert.Equal(t, 100, movement.QuantityAfter)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 100, level.QuantityOnHand)
	assert.Equal(t, 100, level.QuantityAvailable)
	assert.Equal(t, int64(1), level.Version)

	assert.Contains(t, f.outbox.eventTypes(), "erp.inventory.received")
}

func TestReceiveStockCreatesLevelOnFirstUse(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.service.GetStockLevel(ctx, "SKU-NEW", "WH-A", "")
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.HTTPStatus)

	_, err = f.service.ReceiveStock(ctx, ReceiveStockCommand{
		SKU: "SKU-NEW", LocationID: "WH-A", Quantity: 5, UnitCost: 1.0,
	})
	require.NoError(t, err)

	level, err := f.service.GetStockLevel(ctx, "SKU-NEW", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 5, level.QuantityOnHand)
}

func TestAdjustStockDefaultsMovementType(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 50)

	movement, err := f.service.AdjustStock(ctx, AdjustStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Delta:      -10,
		Reason:     "damaged",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementAdjustmentOut, movement.Type)
	assert.Equal(t, 50, movement.QuantityBefore)
	assert.Equal(t, 40, movement.QuantityAfter)
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)

	_, err := f.service.AdjustStock(ctx, AdjustStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Delta:      -20,
	})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.HTTPStatus)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 10, level.QuantityOnHand)
}

func TestReserveStock(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	reservation, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Quantity:   30,
		Reference:  "ORDER-SO-1001-LINE-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, reservation.Status)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 100, level.QuantityOnHand)
	assert.Equal(t, 30, level.QuantityReserved)
	assert.Equal(t, 70, level.QuantityAvailable)

	require.Len(t, f.movements.byType(domain.MovementReservation), 1)
	assert.Contains(t, f.outbox.eventTypes(), "erp.inventory.reserved")
}

func TestReserveStockInsufficientLeavesStockUntouched(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)

	_, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Quantity:   11,
		Reference:  "ORDER-SO-1001-LINE-1",
	})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.HTTPStatus)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityReserved)
	assert.Empty(t, f.movements.byType(domain.MovementReservation))
}

func TestReleaseReservation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	reservation, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 40, Reference: "ref",
	})
	require.NoError(t, err)

	released, err := f.service.ReleaseReservation(ctx, reservation.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, released.Status)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityReserved)
	assert.Equal(t, 100, level.QuantityAvailable)
}

func TestReleaseReservationIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	reservation, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 40, Reference: "ref",
	})
	require.NoError(t, err)

	_, err = f.service.ReleaseReservation(ctx, reservation.ReservationID)
	require.NoError(t, err)

	// Second release is a no-op, not an error
	again, err := f.service.ReleaseReservation(ctx, reservation.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, again.Status)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityReserved)
	require.Len(t, f.movements.byType(domain.MovementRelease), 1)
}

func TestReleaseReservationNotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.service.ReleaseReservation(context.Background(), "nope")
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestConsumeReservation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	reservation, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 25, Reference: "ref",
	})
	require.NoError(t, err)

	consumed, err := f.service.ConsumeReservation(ctx, reservation.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConsumed, consumed.Status)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 75, level.QuantityOnHand)
	assert.Equal(t, 0, level.QuantityReserved)
	assert.Equal(t, 75, level.QuantityAvailable)

	sales := f.movements.byType(domain.MovementSale)
	require.Len(t, sales, 1)
	assert.Equal(t, -25, sales[0].Quantity)
}

func TestConsumeReleasedReservationFails(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	reservation, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 25, Reference: "ref",
	})
	require.NoError(t, err)
	_, err = f.service.ReleaseReservation(ctx, reservation.ReservationID)
	require.NoError(t, err)

	_, err = f.service.ConsumeReservation(ctx, reservation.ReservationID)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestReverseMovement(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	receipt, err := f.service.ReceiveStock(ctx, ReceiveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 50, UnitCost: 1.0, Reference: "PO-1",
	})
	require.NoError(t, err)

	reversal, err := f.service.ReverseMovement(ctx, ReverseMovementCommand{
		MovementID: receipt.MovementID,
		Reason:     "entry error",
	})
	require.NoError(t, err)
	assert.Equal(t, -50, reversal.Quantity)
	assert.Equal(t, receipt.MovementID, reversal.ReversalOfID)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 0, level.QuantityOnHand)

	original, err := f.movements.FindByMovementID(ctx, receipt.MovementID)
	require.NoError(t, err)
	assert.True(t, original.IsReversed)
	assert.Equal(t, reversal.MovementID, original.ReversedByID)
}

func TestReverseMovementTwiceRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	receipt, err := f.service.ReceiveStock(ctx, ReceiveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 50, UnitCost: 1.0,
	})
	require.NoError(t, err)

	_, err = f.service.ReverseMovement(ctx, ReverseMovementCommand{MovementID: receipt.MovementID})
	require.NoError(t, err)

	_, err = f.service.ReverseMovement(ctx, ReverseMovementCommand{MovementID: receipt.MovementID})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestReverseMovementOutsideWindow(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	receipt, err := f.service.ReceiveStock(ctx, ReceiveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 50, UnitCost: 1.0,
	})
	require.NoError(t, err)

	// Age the stored movement past the window
	f.movements.mu.Lock()
	for _, m := range f.movements.movements {
		m.OccurredAt = time.Now().UTC().Add(-domain.ReversalWindow - time.Hour)
	}
	f.movements.mu.Unlock()

	_, err = f.service.ReverseMovement(ctx, ReverseMovementCommand{MovementID: receipt.MovementID})
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestCheckAvailabilityAggregatesAscendingLocations(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-C", 5)
	f.seedStock(t, "SKU-001", "WH-A", 10)
	f.seedStock(t, "SKU-001", "WH-B", 20)

	result, err := f.service.CheckAvailability(ctx, "SKU-001", "", "", 30)
	require.NoError(t, err)

	assert.Equal(t, 35, result.TotalAvailable)
	assert.True(t, result.Sufficient)
	require.Len(t, result.Locations, 3)
	assert.Equal(t, "WH-A", result.Locations[0].LocationID)
	assert.Equal(t, "WH-B", result.Locations[1].LocationID)
	assert.Equal(t, "WH-C", result.Locations[2].LocationID)
}

func TestCheckAvailabilityInsufficient(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)

	result, err := f.service.CheckAvailability(ctx, "SKU-001", "", "", 100)
	require.NoError(t, err)
	assert.False(t, result.Sufficient)
	assert.Equal(t, 10, result.TotalAvailable)
	assert.Equal(t, 90, result.Shortage)
}

func TestCheckAvailabilityScopedToLocation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)
	f.seedStock(t, "SKU-001", "WH-B", 20)

	result, err := f.service.CheckAvailability(ctx, "SKU-001", "", "WH-A", 15)
	require.NoError(t, err)

	assert.Equal(t, "WH-A", result.LocationID)
	assert.Equal(t, 10, result.TotalAvailable)
	assert.False(t, result.Sufficient)
	assert.Equal(t, 5, result.Shortage)
	require.Len(t, result.Locations, 1)
	assert.Equal(t, "WH-A", result.Locations[0].LocationID)
}

func TestCheckAvailabilityUnknownLocation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)

	result, err := f.service.CheckAvailability(ctx, "SKU-001", "", "WH-Z", 5)
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalAvailable)
	assert.False(t, result.Sufficient)
	assert.Equal(t, 5, result.Shortage)
	assert.Empty(t, result.Locations)
}

func TestCheckAvailabilitySufficientHasNoShortage(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 10)

	result, err := f.service.CheckAvailability(ctx, "SKU-001", "", "WH-A", 10)
	require.NoError(t, err)
	assert.True(t, result.Sufficient)
	assert.Zero(t, result.Shortage)
}

func TestVersionConflictRetries(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	f.levels.failSavesWithConflict = 2
	movement, err := f.service.AdjustStock(ctx, AdjustStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Delta:      -10,
	})
	require.NoError(t, err)
	assert.Equal(t, 90, movement.QuantityAfter)
}

func TestVersionConflictExhaustsRetries(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	f.levels.failSavesWithConflict = 3
	_, err := f.service.AdjustStock(ctx, AdjustStockCommand{
		SKU:        "SKU-001",
		LocationID: "WH-A",
		Delta:      -10,
	})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestExpireStaleReservations(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.seedStock(t, "SKU-001", "WH-A", 100)

	past := time.Now().UTC().Add(-time.Hour)
	expired, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 10, Reference: "stale", ExpiresAt: &past,
	})
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	fresh, err := f.service.ReserveStock(ctx, ReserveStockCommand{
		SKU: "SKU-001", LocationID: "WH-A", Quantity: 10, Reference: "fresh", ExpiresAt: &future,
	})
	require.NoError(t, err)

	count, err := f.service.ExpireStaleReservations(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.service.GetReservation(ctx, expired.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, got.Status)

	got, err = f.service.GetReservation(ctx, fresh.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationActive, got.Status)

	level, err := f.service.GetStockLevel(ctx, "SKU-001", "WH-A", "")
	require.NoError(t, err)
	assert.Equal(t, 10, level.QuantityReserved)
}

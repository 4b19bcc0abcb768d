package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockMovement(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReceipt, 50, 0, 50).
		WithReference("PO-1001").
		WithPerformedBy("user-7")

	assert.NotEmpty(t, m.MovementID)
	assert.Equal(t, MovementReceipt, m.Type)
	assert.Equal(t, 50, m.Quantity)
	assert.Equal(t, 0, m.QuantityBefore)
	assert.Equal(t, 50, m.QuantityAfter)
	assert.Equal(t, "PO-1001", m.Reference)
	assert.Equal(t, "user-7", m.PerformedBy)
	assert.False(t, m.IsReversed)
}

func TestStockMovementReverse(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReceipt, 50, 0, 50)

	reversal, err := m.Reverse(time.Now().UTC(), "entry error", "user-7")
	require.NoError(t, err)

	assert.Equal(t, MovementAdjustmentOut, reversal.Type)
	assert.Equal(t, -50, reversal.Quantity)
	assert.Equal(t, m.MovementID, reversal.ReversalOfID)
	assert.Equal(t, "entry error", reversal.Reason)

	assert.True(t, m.IsReversed)
	assert.Equal(t, reversal.MovementID, m.ReversedByID)
}

func TestStockMovementReverseTwice(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementSale, -10, 50, 40)

	_, err := m.Reverse(time.Now().UTC(), "", "")
	require.NoError(t, err)

	_, err = m.Reverse(time.Now().UTC(), "", "")
	assert.ErrorIs(t, err, ErrMovementAlreadyReversed)
}

func TestStockMovementReverseOutsideWindow(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReceipt, 50, 0, 50)
	m.OccurredAt = time.Now().UTC().Add(-ReversalWindow - time.Hour)

	_, err := m.Reverse(time.Now().UTC(), "", "")
	assert.ErrorIs(t, err, ErrReversalWindowExpired)
	assert.False(t, m.IsReversed)
}

func TestStockMovementReverseAtWindowBoundary(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReceipt, 50, 0, 50)
	m.OccurredAt = time.Now().UTC().Add(-ReversalWindow + time.Minute)

	_, err := m.Reverse(time.Now().UTC(), "", "")
	assert.NoError(t, err)
}

func TestStockMovementReversalNotReversible(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReceipt, 50, 0, 50)

	reversal, err := m.Reverse(time.Now().UTC(), "", "")
	require.NoError(t, err)

	_, err = reversal.Reverse(time.Now().UTC(), "", "")
	assert.ErrorIs(t, err, ErrMovementNotReversible)
}

func TestStockMovementReservationNotReversible(t *testing.T) {
	m := NewStockMovement("SKU-001", "", "WH-A", MovementReservation, 10, 100, 100)

	_, err := m.Reverse(time.Now().UTC(), "", "")
	assert.ErrorIs(t, err, ErrMovementNotReversible)
}

func TestStockMovementReverseTypes(t *testing.T) {
	cases := []struct {
		original MovementType
		reversal MovementType
	}{
		{MovementReceipt, MovementAdjustmentOut},
		{MovementSale, MovementReturn},
		{MovementAdjustmentIn, MovementAdjustmentOut},
		{MovementAdjustmentOut, MovementAdjustmentIn},
		{MovementTransferIn, MovementTransferOut},
		{MovementTransferOut, MovementTransferIn},
		{MovementReturn, MovementSale},
		{MovementWaste, MovementAdjustmentIn},
	}

	for _, tc := range cases {
		t.Run(string(tc.original), func(t *testing.T) {
			m := NewStockMovement("SKU-001", "", "WH-A", tc.original, 5, 0, 5)
			reversal, err := m.Reverse(time.Now().UTC(), "", "")
			require.NoError(t, err)
			assert.Equal(t, tc.reversal, reversal.Type)
		})
	}
}

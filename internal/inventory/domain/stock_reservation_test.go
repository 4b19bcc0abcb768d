package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockReservation(t *testing.T) {
	r, err := NewStockReservation("SKU-001", "", "WH-A", 10, "ORDER-SO-1001-LINE-1")
	require.NoError(t, err)

	assert.NotEmpty(t, r.ReservationID)
	assert.Equal(t, ReservationActive, r.Status)
	assert.Equal(t, "ORDER-SO-1001-LINE-1", r.Reference)
	assert.True(t, r.IsActive())
}

func TestNewStockReservationInvalidQuantity(t *testing.T) {
	_, err := NewStockReservation("SKU-001", "", "WH-A", 0, "ref")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStockReservationRelease(t *testing.T) {
	r, err := NewStockReservation("SKU-001", "", "WH-A", 10, "ref")
	require.NoError(t, err)

	require.NoError(t, r.MarkReleased())
	assert.Equal(t, ReservationReleased, r.Status)
	assert.NotNil(t, r.ReleasedAt)

	assert.ErrorIs(t, r.MarkReleased(), ErrReservationNotActive)
	assert.ErrorIs(t, r.MarkConsumed(), ErrReservationNotActive)
}

func TestStockReservationConsume(t *testing.T) {
	r, err := NewStockReservation("SKU-001", "", "WH-A", 10, "ref")
	require.NoError(t, err)

	require.NoError(t, r.MarkConsumed())
	assert.Equal(t, ReservationConsumed, r.Status)
	assert.NotNil(t, r.ConsumedAt)
}

func TestStockReservationExpiry(t *testing.T) {
	r, err := NewStockReservation("SKU-001", "", "WH-A", 10, "ref")
	require.NoError(t, err)
	r.WithExpiry(time.Now().UTC().Add(-time.Minute))

	assert.True(t, r.IsPastExpiry(time.Now().UTC()))

	require.NoError(t, r.MarkExpired())
	assert.Equal(t, ReservationExpired, r.Status)
	assert.False(t, r.IsPastExpiry(time.Now().UTC()))
}

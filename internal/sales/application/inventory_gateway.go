package application

import (
	"context"
	"time"
)

// ReservationRequest asks the inventory side to earmark stock for one order line
type ReservationRequest struct {
	SKU        string
	VariantID  string
	LocationID string
	Quantity   int
	Reference  string
	ExpiresAt  *time.Time
}

// AvailabilityCheck is the inventory side's answer to a stock probe
type AvailabilityCheck struct {
	TotalAvailable int
	Sufficient     bool
}

// InventoryGateway is the sales side's view of the stock ledger. Implemented
// by an HTTP client when inventory runs as a separate service, or by an
// in-process adapter when both contexts share a binary.
type InventoryGateway interface {
	// Reserve earmarks stock and returns the reservation id
	Reserve(ctx context.Context, req ReservationRequest) (string, error)

	// Release returns a reservation's stock. Safe to call repeatedly.
	Release(ctx context.Context, reservationID string) error

	// Consume converts a reservation into a stock decrement
	Consume(ctx context.Context, reservationID string) error

	// CheckAvailability probes aggregate availability for a SKU
	CheckAvailability(ctx context.Context, sku, variantID string, quantity int) (*AvailabilityCheck, error)
}

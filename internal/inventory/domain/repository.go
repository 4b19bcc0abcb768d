package domain

import (
	"context"
	"time"
)

// StockLevelFilter narrows stock level queries
type StockLevelFilter struct {
	SKU               string
	LocationID        string
	VariantID         string
	ActiveOnly        bool
	BelowReorderPoint bool
	Limit             int
	Offset            int
}

// StockLevelRepository persists stock level aggregates
type StockLevelRepository interface {
	// Save persists the aggregate with optimistic version check. Returns
	// ErrVersionConflict when the stored version no longer matches.
	Save(ctx context.Context, level *StockLevel) error

	// FindByKey returns the level for (sku, locationId, variantId), nil when absent
	FindByKey(ctx context.Context, sku, locationID, variantID string) (*StockLevel, error)

	// FindBySKU returns all levels for a SKU ordered by locationId ascending
	FindBySKU(ctx context.Context, sku, variantID string) ([]*StockLevel, error)

	// Find returns levels matching the filter
	Find(ctx context.Context, filter StockLevelFilter) ([]*StockLevel, error)

	Count(ctx context.Context, filter StockLevelFilter) (int64, error)
}

// MovementFilter narrows stock movement queries
type MovementFilter struct {
	SKU        string
	LocationID string
	Type       MovementType
	Reference  string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// StockMovementRepository persists the append-only movement log
type StockMovementRepository interface {
	// Insert appends a movement. Movements are never updated except to mark reversal.
	Insert(ctx context.Context, movement *StockMovement) error

	// MarkReversed flags the original movement with the id of its reversal
	MarkReversed(ctx context.Context, movementID, reversedByID string) error

	// FindByMovementID returns a movement by its business id, nil when absent
	FindByMovementID(ctx context.Context, movementID string) (*StockMovement, error)

	// Find returns movements matching the filter ordered by occurredAt descending
	Find(ctx context.Context, filter MovementFilter) ([]*StockMovement, error)

	Count(ctx context.Context, filter MovementFilter) (int64, error)
}

// StockReservationRepository persists reservations
type StockReservationRepository interface {
	Save(ctx context.Context, reservation *StockReservation) error

	// FindByReservationID returns a reservation by its business id, nil when absent
	FindByReservationID(ctx context.Context, reservationID string) (*StockReservation, error)

	// FindByReference returns all reservations carrying the given reference
	FindByReference(ctx context.Context, reference string) ([]*StockReservation, error)

	// FindActiveExpiredBefore returns active reservations whose expiry has passed
	FindActiveExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*StockReservation, error)
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MovementType categorizes stock movements
type MovementType string

const (
	MovementReceipt       MovementType = "receipt"
	MovementSale          MovementType = "sale"
	MovementAdjustmentIn  MovementType = "adjustment_in"
	MovementAdjustmentOut MovementType = "adjustment_out"
	MovementTransferIn    MovementType = "transfer_in"
	MovementTransferOut   MovementType = "transfer_out"
	MovementCycleCount    MovementType = "cycle_count"
	MovementReservation   MovementType = "reservation"
	MovementRelease       MovementType = "release"
	MovementReturn        MovementType = "return"
	MovementWaste         MovementType = "waste"
	MovementProduction    MovementType = "production"
)

// ReversalWindow is how long after a movement occurs it may still be reversed
const ReversalWindow = 72 * time.Hour

// reversalTypes maps a movement type to the type of its compensating movement.
// Types absent from the map cannot be reversed.
var reversalTypes = map[MovementType]MovementType{
	MovementReceipt:       MovementAdjustmentOut,
	MovementSale:          MovementReturn,
	MovementAdjustmentIn:  MovementAdjustmentOut,
	MovementAdjustmentOut: MovementAdjustmentIn,
	MovementTransferIn:    MovementTransferOut,
	MovementTransferOut:   MovementTransferIn,
	MovementCycleCount:    MovementCycleCount,
	MovementReturn:        MovementSale,
	MovementWaste:         MovementAdjustmentIn,
	MovementProduction:    MovementAdjustmentOut,
}

// StockMovement is an append-only record of a single stock change.
// Quantity is signed: positive for inbound, negative for outbound.
type StockMovement struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MovementID string             `bson:"movementId" json:"movementId"`

	SKU        string `bson:"sku" json:"sku"`
	VariantID  string `bson:"variantId,omitempty" json:"variantId,omitempty"`
	LocationID string `bson:"locationId" json:"locationId"`

	Type           MovementType `bson:"type" json:"type"`
	Quantity       int          `bson:"quantity" json:"quantity"`
	QuantityBefore int          `bson:"quantityBefore" json:"quantityBefore"`
	QuantityAfter  int          `bson:"quantityAfter" json:"quantityAfter"`
	UnitCost       float64      `bson:"unitCost,omitempty" json:"unitCost,omitempty"`

	Reference     string `bson:"reference,omitempty" json:"reference,omitempty"`
	ReservationID string `bson:"reservationId,omitempty" json:"reservationId,omitempty"`
	Reason        string `bson:"reason,omitempty" json:"reason,omitempty"`
	PerformedBy   string `bson:"performedBy,omitempty" json:"performedBy,omitempty"`

	IsReversed   bool   `bson:"isReversed" json:"isReversed"`
	ReversalOfID string `bson:"reversalOfId,omitempty" json:"reversalOfId,omitempty"`
	ReversedByID string `bson:"reversedById,omitempty" json:"reversedById,omitempty"`

	OccurredAt time.Time `bson:"occurredAt" json:"occurredAt"`
}

// NewStockMovement records a stock change with a before/after snapshot
func NewStockMovement(sku, variantID, locationID string, movementType MovementType, quantity, quantityBefore, quantityAfter int) *StockMovement {
	return &StockMovement{
		MovementID:     uuid.New().String(),
		SKU:            sku,
		VariantID:      variantID,
		LocationID:     locationID,
		Type:           movementType,
		Quantity:       quantity,
		QuantityBefore: quantityBefore,
		QuantityAfter:  quantityAfter,
		OccurredAt:     time.Now().UTC(),
	}
}

// WithReference attaches a business document reference to the movement
func (m *StockMovement) WithReference(reference string) *StockMovement {
	m.Reference = reference
	return m
}

// WithReservation links the movement to a reservation
func (m *StockMovement) WithReservation(reservationID string) *StockMovement {
	m.ReservationID = reservationID
	return m
}

// WithReason records the operator-supplied reason for the movement
func (m *StockMovement) WithReason(reason string) *StockMovement {
	m.Reason = reason
	return m
}

// WithPerformedBy records who performed the movement
func (m *StockMovement) WithPerformedBy(userID string) *StockMovement {
	m.PerformedBy = userID
	return m
}

// WithUnitCost records the unit cost at which the movement was valued
func (m *StockMovement) WithUnitCost(unitCost float64) *StockMovement {
	m.UnitCost = unitCost
	return m
}

// IsReversal reports whether this movement compensates an earlier one
func (m *StockMovement) IsReversal() bool {
	return m.ReversalOfID != ""
}

// CanReverse checks whether the movement may be reversed at the given time
func (m *StockMovement) CanReverse(now time.Time) error {
	if m.IsReversed {
		return ErrMovementAlreadyReversed
	}
	if m.IsReversal() {
		return ErrMovementNotReversible
	}
	if _, ok := reversalTypes[m.Type]; !ok {
		return ErrMovementNotReversible
	}
	if now.Sub(m.OccurredAt) > ReversalWindow {
		return ErrReversalWindowExpired
	}
	return nil
}

// Reverse produces the compensating movement for this one and marks this
// movement reversed. The caller applies the compensating quantity to the
// stock level and persists both records.
func (m *StockMovement) Reverse(now time.Time, reason, performedBy string) (*StockMovement, error) {
	if err := m.CanReverse(now); err != nil {
		return nil, err
	}

	reversal := &StockMovement{
		MovementID:   uuid.New().String(),
		SKU:          m.SKU,
		VariantID:    m.VariantID,
		LocationID:   m.LocationID,
		Type:         reversalTypes[m.Type],
		Quantity:     -m.Quantity,
		UnitCost:     m.UnitCost,
		Reference:    m.Reference,
		Reason:       reason,
		PerformedBy:  performedBy,
		ReversalOfID: m.MovementID,
		OccurredAt:   now,
	}

	m.IsReversed = true
	m.ReversedByID = reversal.MovementID

	return reversal, nil
}

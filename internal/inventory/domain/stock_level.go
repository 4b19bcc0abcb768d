package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CostMethod identifies how unit cost is maintained for a stock level
type CostMethod string

const (
	CostMethodAverage  CostMethod = "average"
	CostMethodStandard CostMethod = "standard"
	CostMethodFIFO     CostMethod = "fifo"
)

// StockLevel is the aggregate root tracking quantities of one SKU at one location.
// The invariant QuantityAvailable = QuantityOnHand - QuantityReserved is
// recomputed on every mutation rather than stored independently.
type StockLevel struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SKU        string             `bson:"sku" json:"sku"`
	VariantID  string             `bson:"variantId,omitempty" json:"variantId,omitempty"`
	LocationID string             `bson:"locationId" json:"locationId"`

	QuantityOnHand    int `bson:"quantityOnHand" json:"quantityOnHand"`
	QuantityReserved  int `bson:"quantityReserved" json:"quantityReserved"`
	QuantityAvailable int `bson:"quantityAvailable" json:"quantityAvailable"`
	QuantityIncoming  int `bson:"quantityIncoming" json:"quantityIncoming"`

	BatchNumber  string     `bson:"batchNumber,omitempty" json:"batchNumber,omitempty"`
	SerialNumber string     `bson:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	ExpiryDate   *time.Time `bson:"expiryDate,omitempty" json:"expiryDate,omitempty"`

	UnitCost   float64    `bson:"unitCost" json:"unitCost"`
	CostMethod CostMethod `bson:"costMethod" json:"costMethod"`

	ReorderPoint         int  `bson:"reorderPoint" json:"reorderPoint"`
	NegativeStockAllowed bool `bson:"negativeStockAllowed" json:"negativeStockAllowed"`
	IsActive             bool `bson:"isActive" json:"isActive"`

	LastMovementAt   *time.Time   `bson:"lastMovementAt,omitempty" json:"lastMovementAt,omitempty"`
	LastMovementType MovementType `bson:"lastMovementType,omitempty" json:"lastMovementType,omitempty"`

	// Version supports optimistic locking on save
	Version int64 `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewStockLevel creates a zeroed stock level for a SKU at a location
func NewStockLevel(sku, locationID, variantID string) *StockLevel {
	now := time.Now().UTC()
	return &StockLevel{
		SKU:          sku,
		LocationID:   locationID,
		VariantID:    variantID,
		CostMethod:   CostMethodAverage,
		IsActive:     true,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}
}

func (s *StockLevel) recompute() {
	s.QuantityAvailable = s.QuantityOnHand - s.QuantityReserved
	s.UpdatedAt = time.Now().UTC()
}

// Adjust changes on-hand stock by delta (positive or negative) for the given
// movement type. Negative results are rejected unless negative stock is
// explicitly allowed for this row.
func (s *StockLevel) Adjust(delta int, movementType MovementType, reason string) error {
	if !s.IsActive {
		return ErrStockLevelInactive
	}
	if delta == 0 {
		return ErrInvalidQuantity
	}

	newOnHand := s.QuantityOnHand + delta
	if newOnHand < 0 && !s.NegativeStockAllowed {
		return ErrNegativeStock
	}

	oldOnHand := s.QuantityOnHand
	s.QuantityOnHand = newOnHand
	s.markMovement(movementType)
	s.recompute()

	s.AddDomainEvent(&StockAdjustedEvent{
		SKU:          s.SKU,
		VariantID:    s.VariantID,
		LocationID:   s.LocationID,
		OldQuantity:  oldOnHand,
		NewQuantity:  newOnHand,
		MovementType: string(movementType),
		Reason:       reason,
		AdjustedAt:   time.Now().UTC(),
	})

	s.checkReorderPoint()
	return nil
}

// Receive increases on-hand stock and rolls the unit cost forward using the
// weighted average when the cost method is average.
func (s *StockLevel) Receive(quantity int, unitCost float64, reference string) error {
	if !s.IsActive {
		return ErrStockLevelInactive
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	if s.CostMethod == CostMethodAverage && unitCost > 0 {
		total := float64(s.QuantityOnHand)*s.UnitCost + float64(quantity)*unitCost
		s.UnitCost = total / float64(s.QuantityOnHand+quantity)
	} else if unitCost > 0 {
		s.UnitCost = unitCost
	}

	s.QuantityOnHand += quantity
	if s.QuantityIncoming >= quantity {
		s.QuantityIncoming -= quantity
	} else {
		s.QuantityIncoming = 0
	}
	s.markMovement(MovementReceipt)
	s.recompute()

	s.AddDomainEvent(&StockReceivedEvent{
		SKU:        s.SKU,
		VariantID:  s.VariantID,
		LocationID: s.LocationID,
		Quantity:   quantity,
		UnitCost:   unitCost,
		Reference:  reference,
		ReceivedAt: time.Now().UTC(),
	})

	return nil
}

// Reserve earmarks quantity from available stock. Returns false without
// mutating when the requested quantity exceeds availability.
func (s *StockLevel) Reserve(quantity int) bool {
	if !s.IsActive || quantity <= 0 {
		return false
	}
	if quantity > s.QuantityAvailable {
		return false
	}

	s.QuantityReserved += quantity
	s.markMovement(MovementReservation)
	s.recompute()
	return true
}

// Release returns reserved quantity to available stock. Returns false without
// mutating when the requested quantity exceeds the current reservation total.
func (s *StockLevel) Release(quantity int) bool {
	if quantity <= 0 {
		return false
	}
	if quantity > s.QuantityReserved {
		return false
	}

	s.QuantityReserved -= quantity
	s.markMovement(MovementRelease)
	s.recompute()
	return true
}

// Consume converts reserved quantity into an on-hand decrement, the terminal
// step of a fulfilled reservation.
func (s *StockLevel) Consume(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > s.QuantityReserved {
		return ErrInsufficientStock
	}

	s.QuantityReserved -= quantity
	s.QuantityOnHand -= quantity
	s.markMovement(MovementSale)
	s.recompute()

	s.checkReorderPoint()
	return nil
}

// ExpectIncoming records quantity expected from a purchase order
func (s *StockLevel) ExpectIncoming(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.QuantityIncoming += quantity
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate soft deletes the stock level row
func (s *StockLevel) Deactivate() {
	s.IsActive = false
	s.UpdatedAt = time.Now().UTC()
}

func (s *StockLevel) markMovement(movementType MovementType) {
	now := time.Now().UTC()
	s.LastMovementAt = &now
	s.LastMovementType = movementType
}

func (s *StockLevel) checkReorderPoint() {
	if s.ReorderPoint > 0 && s.QuantityAvailable <= s.ReorderPoint {
		s.AddDomainEvent(&LowStockAlertEvent{
			SKU:               s.SKU,
			LocationID:        s.LocationID,
			QuantityAvailable: s.QuantityAvailable,
			ReorderPoint:      s.ReorderPoint,
			AlertedAt:         time.Now().UTC(),
		})
	}
}

// AddDomainEvent adds a domain event to the aggregate
func (s *StockLevel) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// ClearDomainEvents clears all domain events after they have been dispatched
func (s *StockLevel) ClearDomainEvents() {
	s.DomainEvents = make([]DomainEvent, 0)
}

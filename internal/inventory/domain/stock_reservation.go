package domain

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReservationStatus is the lifecycle state of a stock reservation
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
	ReservationConsumed ReservationStatus = "consumed"
	ReservationExpired  ReservationStatus = "expired"
)

// StockReservation is an earmark of quantity against a stock level for a
// business document, identified by its reference.
type StockReservation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ReservationID string             `bson:"reservationId" json:"reservationId"`

	SKU        string `bson:"sku" json:"sku"`
	VariantID  string `bson:"variantId,omitempty" json:"variantId,omitempty"`
	LocationID string `bson:"locationId" json:"locationId"`
	Quantity   int    `bson:"quantity" json:"quantity"`

	Reference string            `bson:"reference" json:"reference"`
	Status    ReservationStatus `bson:"status" json:"status"`

	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
	ExpiresAt  *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	ReleasedAt *time.Time `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	ConsumedAt *time.Time `bson:"consumedAt,omitempty" json:"consumedAt,omitempty"`
}

// NewStockReservation creates an active reservation
func NewStockReservation(sku, variantID, locationID string, quantity int, reference string) (*StockReservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	return &StockReservation{
		ReservationID: uuid.New().String(),
		SKU:           sku,
		VariantID:     variantID,
		LocationID:    locationID,
		Quantity:      quantity,
		Reference:     reference,
		Status:        ReservationActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// WithExpiry sets an expiry deadline on the reservation
func (r *StockReservation) WithExpiry(expiresAt time.Time) *StockReservation {
	r.ExpiresAt = &expiresAt
	return r
}

// IsActive reports whether the reservation still holds stock
func (r *StockReservation) IsActive() bool {
	return r.Status == ReservationActive
}

// MarkReleased transitions the reservation to released
func (r *StockReservation) MarkReleased() error {
	if r.Status != ReservationActive {
		return ErrReservationNotActive
	}
	now := time.Now().UTC()
	r.Status = ReservationReleased
	r.ReleasedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkConsumed transitions the reservation to consumed
func (r *StockReservation) MarkConsumed() error {
	if r.Status != ReservationActive {
		return ErrReservationNotActive
	}
	now := time.Now().UTC()
	r.Status = ReservationConsumed
	r.ConsumedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkExpired transitions the reservation to expired
func (r *StockReservation) MarkExpired() error {
	if r.Status != ReservationActive {
		return ErrReservationNotActive
	}
	now := time.Now().UTC()
	r.Status = ReservationExpired
	r.UpdatedAt = now
	return nil
}

// IsPastExpiry reports whether an active reservation has passed its deadline
func (r *StockReservation) IsPastExpiry(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

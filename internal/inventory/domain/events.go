package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// StockReceivedEvent is published when stock is received into a location
type StockReceivedEvent struct {
	SKU        string    `json:"sku"`
	VariantID  string    `json:"variantId,omitempty"`
	LocationID string    `json:"locationId"`
	Quantity   int       `json:"quantity"`
	UnitCost   float64   `json:"unitCost"`
	Reference  string    `json:"reference,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (e *StockReceivedEvent) EventType() string     { return "erp.inventory.received" }
func (e *StockReceivedEvent) OccurredAt() time.Time { return e.ReceivedAt }

// StockAdjustedEvent is published when on-hand stock is adjusted
type StockAdjustedEvent struct {
	SKU          string    `json:"sku"`
	VariantID    string    `json:"variantId,omitempty"`
	LocationID   string    `json:"locationId"`
	OldQuantity  int       `json:"oldQuantity"`
	NewQuantity  int       `json:"newQuantity"`
	MovementType string    `json:"movementType"`
	Reason       string    `json:"reason,omitempty"`
	AdjustedAt   time.Time `json:"adjustedAt"`
}

func (e *StockAdjustedEvent) EventType() string     { return "erp.inventory.adjusted" }
func (e *StockAdjustedEvent) OccurredAt() time.Time { return e.AdjustedAt }

// StockReservedEvent is published when stock is reserved
type StockReservedEvent struct {
	ReservationID string    `json:"reservationId"`
	SKU           string    `json:"sku"`
	VariantID     string    `json:"variantId,omitempty"`
	LocationID    string    `json:"locationId"`
	Quantity      int       `json:"quantity"`
	Reference     string    `json:"reference"`
	ReservedAt    time.Time `json:"reservedAt"`
}

func (e *StockReservedEvent) EventType() string     { return "erp.inventory.reserved" }
func (e *StockReservedEvent) OccurredAt() time.Time { return e.ReservedAt }

// StockReleasedEvent is published when a reservation is released
type StockReleasedEvent struct {
	ReservationID string    `json:"reservationId"`
	SKU           string    `json:"sku"`
	LocationID    string    `json:"locationId"`
	Quantity      int       `json:"quantity"`
	Reference     string    `json:"reference"`
	ReleasedAt    time.Time `json:"releasedAt"`
}

func (e *StockReleasedEvent) EventType() string     { return "erp.inventory.released" }
func (e *StockReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// StockConsumedEvent is published when a reservation is consumed by a shipment
type StockConsumedEvent struct {
	ReservationID string    `json:"reservationId"`
	SKU           string    `json:"sku"`
	LocationID    string    `json:"locationId"`
	Quantity      int       `json:"quantity"`
	Reference     string    `json:"reference"`
	ConsumedAt    time.Time `json:"consumedAt"`
}

func (e *StockConsumedEvent) EventType() string     { return "erp.inventory.consumed" }
func (e *StockConsumedEvent) OccurredAt() time.Time { return e.ConsumedAt }

// MovementReversedEvent is published when a stock movement is reversed
type MovementReversedEvent struct {
	OriginalMovementID string    `json:"originalMovementId"`
	ReversalMovementID string    `json:"reversalMovementId"`
	SKU                string    `json:"sku"`
	LocationID         string    `json:"locationId"`
	Quantity           int       `json:"quantity"`
	Reason             string    `json:"reason,omitempty"`
	ReversedAt         time.Time `json:"reversedAt"`
}

func (e *MovementReversedEvent) EventType() string     { return "erp.inventory.movement-reversed" }
func (e *MovementReversedEvent) OccurredAt() time.Time { return e.ReversedAt }

// LowStockAlertEvent is published when available stock falls below the reorder point
type LowStockAlertEvent struct {
	SKU               string    `json:"sku"`
	LocationID        string    `json:"locationId"`
	QuantityAvailable int       `json:"quantityAvailable"`
	ReorderPoint      int       `json:"reorderPoint"`
	AlertedAt         time.Time `json:"alertedAt"`
}

func (e *LowStockAlertEvent) EventType() string     { return "erp.inventory.low-stock-alert" }
func (e *LowStockAlertEvent) OccurredAt() time.Time { return e.AlertedAt }

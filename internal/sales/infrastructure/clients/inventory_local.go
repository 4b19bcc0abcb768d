package clients

import (
	"context"
	"fmt"

	inventoryapp "github.com/erp-platform/order-lifecycle/internal/inventory/application"
	"github.com/erp-platform/order-lifecycle/internal/sales/application"
)

// LocalInventoryGateway implements application.InventoryGateway directly
// against the stock ledger for deployments where both contexts share a
// binary. No HTTP, no circuit breaker.
type LocalInventoryGateway struct {
	ledger *inventoryapp.LedgerService
}

// NewLocalInventoryGateway creates a new LocalInventoryGateway
func NewLocalInventoryGateway(ledger *inventoryapp.LedgerService) *LocalInventoryGateway {
	return &LocalInventoryGateway{ledger: ledger}
}

// Reserve earmarks stock and returns the reservation id. When the request
// names no location it reserves at the first location, in ascending location
// id order, holding the full requested quantity.
func (g *LocalInventoryGateway) Reserve(ctx context.Context, req application.ReservationRequest) (string, error) {
	locationID := req.LocationID
	if locationID == "" {
		availability, err := g.ledger.CheckAvailability(ctx, req.SKU, req.VariantID, "", req.Quantity)
		if err != nil {
			return "", err
		}
		for _, loc := range availability.Locations {
			if loc.Available >= req.Quantity {
				locationID = loc.LocationID
				break
			}
		}
		if locationID == "" {
			return "", fmt.Errorf("insufficient stock available: requested %d, available %d",
				req.Quantity, availability.TotalAvailable)
		}
	}

	reservation, err := g.ledger.ReserveStock(ctx, inventoryapp.ReserveStockCommand{
		SKU:        req.SKU,
		VariantID:  req.VariantID,
		LocationID: locationID,
		Quantity:   req.Quantity,
		Reference:  req.Reference,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return "", err
	}
	return reservation.ReservationID, nil
}

// Release returns a reservation's stock. The ledger ignores releases of
// reservations that are no longer active, so repeats are safe.
func (g *LocalInventoryGateway) Release(ctx context.Context, reservationID string) error {
	_, err := g.ledger.ReleaseReservation(ctx, reservationID)
	return err
}

// Consume converts a reservation into a stock decrement
func (g *LocalInventoryGateway) Consume(ctx context.Context, reservationID string) error {
	_, err := g.ledger.ConsumeReservation(ctx, reservationID)
	return err
}

// CheckAvailability probes aggregate availability for a SKU
func (g *LocalInventoryGateway) CheckAvailability(ctx context.Context, sku, variantID string, quantity int) (*application.AvailabilityCheck, error) {
	result, err := g.ledger.CheckAvailability(ctx, sku, variantID, "", quantity)
	if err != nil {
		return nil, err
	}
	return &application.AvailabilityCheck{
		TotalAvailable: result.TotalAvailable,
		Sufficient:     result.Sufficient,
	}, nil
}

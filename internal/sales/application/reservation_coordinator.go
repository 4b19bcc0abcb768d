package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
)

// ReservationCoordinator translates an order's line items into per-line
// reserve calls against the stock ledger with all-or-nothing semantics.
// Cross-line atomicity comes from compensating rollback, not a transaction:
// on any failure every reservation made so far is released in the order it
// was acquired.
type ReservationCoordinator struct {
	gateway InventoryGateway
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewReservationCoordinator creates a new ReservationCoordinator
func NewReservationCoordinator(gateway InventoryGateway, logger *logging.Logger, m *metrics.Metrics) *ReservationCoordinator {
	return &ReservationCoordinator{
		gateway: gateway,
		logger:  logger.WithComponent("reservation-coordinator"),
		metrics: m,
	}
}

// LineReference builds the reservation reference for one order line
func LineReference(orderNumber string, lineNumber int) string {
	return fmt.Sprintf("ORDER-%s-LINE-%d", orderNumber, lineNumber)
}

type acquiredReservation struct {
	lineNumber    int
	reservationID string
}

// ReserveOrderInventory reserves stock for every line of the order,
// sequentially in line order. On the first failure it stops, releases the
// reservations already acquired, and returns a validation error listing
// every failure. On success it returns the reservation id per line number.
func (c *ReservationCoordinator) ReserveOrderInventory(ctx context.Context, order *domain.SalesOrder, expiresAt *time.Time) (map[int]string, error) {
	acquired := make([]acquiredReservation, 0, len(order.Lines))
	var failures []string

	for _, line := range order.Lines {
		if line.SKU == "" {
			continue
		}

		reservationID, err := c.gateway.Reserve(ctx, ReservationRequest{
			SKU:        line.SKU,
			VariantID:  line.VariantID,
			LocationID: "",
			Quantity:   line.Quantity,
			Reference:  LineReference(order.OrderNumber, line.LineNumber),
			ExpiresAt:  expiresAt,
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("line %d (%s x%d): %v",
				line.LineNumber, line.SKU, line.Quantity, err))
			break
		}
		acquired = append(acquired, acquiredReservation{
			lineNumber:    line.LineNumber,
			reservationID: reservationID,
		})
	}

	if len(failures) > 0 {
		c.rollback(ctx, order.OrderNumber, acquired)
		c.metrics.RecordStockReservation("order_reserve", false)
		return nil, errors.ErrValidation(
			fmt.Sprintf("insufficient stock for order %s: %s",
				order.OrderNumber, strings.Join(failures, "; ")))
	}

	reservations := make(map[int]string, len(acquired))
	for _, a := range acquired {
		reservations[a.lineNumber] = a.reservationID
	}

	c.metrics.RecordStockReservation("order_reserve", true)
	c.logger.Info("Reserved order inventory",
		"orderNumber", order.OrderNumber,
		"lines", len(reservations),
	)
	return reservations, nil
}

// rollback releases acquired reservations in acquisition order
func (c *ReservationCoordinator) rollback(ctx context.Context, orderNumber string, acquired []acquiredReservation) {
	for _, a := range acquired {
		if err := c.gateway.Release(ctx, a.reservationID); err != nil {
			// A failed compensating release leaves a live reservation with
			// no confirmed order behind it; log loudly so it can be swept
			c.logger.WithError(err).Error("Failed to roll back reservation",
				"orderNumber", orderNumber,
				"lineNumber", a.lineNumber,
				"reservationId", a.reservationID,
			)
			continue
		}
		c.logger.Info("Rolled back reservation",
			"orderNumber", orderNumber,
			"lineNumber", a.lineNumber,
			"reservationId", a.reservationID,
		)
	}
}

// ReleaseOrderInventory releases every reservation the order still holds.
// Failures are collected, logged, and returned joined; callers treat release
// as best-effort on cancellation.
func (c *ReservationCoordinator) ReleaseOrderInventory(ctx context.Context, order *domain.SalesOrder) error {
	var failures []string
	for _, reservationID := range order.ReservationIDs {
		if err := c.gateway.Release(ctx, reservationID); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", reservationID, err))
			c.logger.WithError(err).Error("Failed to release reservation",
				"orderNumber", order.OrderNumber,
				"reservationId", reservationID,
			)
		}
	}
	if len(failures) > 0 {
		c.metrics.RecordStockReservation("order_release", false)
		return fmt.Errorf("failed to release %d of %d reservations for order %s: %s",
			len(failures), len(order.ReservationIDs), order.OrderNumber, strings.Join(failures, "; "))
	}
	if len(order.ReservationIDs) > 0 {
		c.metrics.RecordStockReservation("order_release", true)
	}
	return nil
}

// ConsumeLineReservations consumes the reservations backing fully shipped
// lines. Unlike reserve, consumption is not all-or-nothing: a failed consume
// is logged and skipped so the remaining lines still go through, and the
// joined error is returned for the caller to surface.
func (c *ReservationCoordinator) ConsumeLineReservations(ctx context.Context, order *domain.SalesOrder, lineNumbers []int) error {
	var failures []string
	for _, lineNumber := range lineNumbers {
		var reservationID string
		for i := range order.Lines {
			if order.Lines[i].LineNumber == lineNumber {
				reservationID = order.Lines[i].ReservationID
				break
			}
		}
		if reservationID == "" {
			continue
		}

		if err := c.gateway.Consume(ctx, reservationID); err != nil {
			failures = append(failures, fmt.Sprintf("line %d (%s): %v", lineNumber, reservationID, err))
			c.logger.WithError(err).Error("Failed to consume reservation",
				"orderNumber", order.OrderNumber,
				"lineNumber", lineNumber,
				"reservationId", reservationID,
			)
			continue
		}
		c.logger.Info("Consumed reservation",
			"orderNumber", order.OrderNumber,
			"lineNumber", lineNumber,
			"reservationId", reservationID,
		)
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to consume reservations for order %s: %s",
			order.OrderNumber, strings.Join(failures, "; "))
	}
	return nil
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
	"github.com/erp-platform/order-lifecycle/pkg/cloudevents"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

// maxSaveAttempts bounds the optimistic retry loop on version conflicts
const maxSaveAttempts = 3

// LedgerService is the single mutation path for stock. Every on-hand change
// goes through it and is paired with exactly one movement record.
type LedgerService struct {
	levels       domain.StockLevelRepository
	movements    domain.StockMovementRepository
	reservations domain.StockReservationRepository
	outboxRepo   outbox.Repository
	events       *cloudevents.EventFactory
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	levels domain.StockLevelRepository,
	movements domain.StockMovementRepository,
	reservations domain.StockReservationRepository,
	outboxRepo outbox.Repository,
	logger *logging.Logger,
	m *metrics.Metrics,
) *LedgerService {
	return &LedgerService{
		levels:       levels,
		movements:    movements,
		reservations: reservations,
		outboxRepo:   outboxRepo,
		events:       cloudevents.NewEventFactory(cloudevents.SourceInventory),
		logger:       logger.WithComponent("ledger-service"),
		metrics:      m,
	}
}

// GetStockLevel returns the stock level for a key
func (s *LedgerService) GetStockLevel(ctx context.Context, sku, locationID, variantID string) (*domain.StockLevel, error) {
	level, err := s.levels.FindByKey(ctx, sku, locationID, variantID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find stock level").Wrap(err)
	}
	if level == nil {
		return nil, errors.ErrNotFound("stock level")
	}
	return level, nil
}

// ListStockLevels returns stock levels matching the filter
func (s *LedgerService) ListStockLevels(ctx context.Context, filter domain.StockLevelFilter) ([]*domain.StockLevel, int64, error) {
	levels, err := s.levels.Find(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to list stock levels").Wrap(err)
	}
	total, err := s.levels.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to count stock levels").Wrap(err)
	}
	return levels, total, nil
}

// getOrCreate loads the level for a key, creating a zeroed row when absent
func (s *LedgerService) getOrCreate(ctx context.Context, sku, locationID, variantID string) (*domain.StockLevel, error) {
	level, err := s.levels.FindByKey(ctx, sku, locationID, variantID)
	if err != nil {
		return nil, err
	}
	if level == nil {
		level = domain.NewStockLevel(sku, locationID, variantID)
	}
	return level, nil
}

// mutateWithRetry runs load-mutate-save under optimistic locking, retrying a
// bounded number of times when a concurrent writer bumped the version.
func (s *LedgerService) mutateWithRetry(ctx context.Context, sku, locationID, variantID string, mutate func(*domain.StockLevel) error) (*domain.StockLevel, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		level, err := s.getOrCreate(ctx, sku, locationID, variantID)
		if err != nil {
			return nil, errors.ErrInternal("failed to load stock level").Wrap(err)
		}

		if err := mutate(level); err != nil {
			return nil, err
		}

		err = s.levels.Save(ctx, level)
		if err == nil {
			return level, nil
		}
		if err != domain.ErrVersionConflict {
			return nil, errors.ErrInternal("failed to save stock level").Wrap(err)
		}

		s.metrics.RecordStockVersionConflict()
		s.logger.Warn("Version conflict on stock level, retrying",
			"sku", sku,
			"locationId", locationID,
			"attempt", attempt,
		)
		lastErr = err
	}
	return nil, errors.ErrConflict("stock level was modified concurrently").Wrap(lastErr)
}

// recordMovement inserts the movement record and bumps the movement counter
func (s *LedgerService) recordMovement(ctx context.Context, movement *domain.StockMovement) error {
	if err := s.movements.Insert(ctx, movement); err != nil {
		return errors.ErrInternal("failed to record stock movement").Wrap(err)
	}
	s.metrics.RecordStockMovement(string(movement.Type))
	return nil
}

// enqueueEvents converts pending domain events to CloudEvents in the outbox
func (s *LedgerService) enqueueEvents(ctx context.Context, aggregateID string, level *domain.StockLevel) {
	for _, event := range level.DomainEvents {
		ce := s.events.CreateEventWithCorrelation(ctx, event.EventType(), "stock/"+level.SKU, event, logging.CorrelationIDFromContext(ctx))
		outboxEvent, err := outbox.NewOutboxEvent(aggregateID, "stock_level", kafka.Topics.InventoryEvents, ce)
		if err != nil {
			s.logger.WithError(err).Error("Failed to build outbox event", "eventType", event.EventType())
			continue
		}
		if err := s.outboxRepo.Save(ctx, outboxEvent); err != nil {
			s.logger.WithError(err).Error("Failed to enqueue outbox event", "eventType", event.EventType())
		}
	}
	level.ClearDomainEvents()
}

func levelKey(sku, locationID, variantID string) string {
	if variantID == "" {
		return fmt.Sprintf("%s/%s", sku, locationID)
	}
	return fmt.Sprintf("%s/%s/%s", sku, locationID, variantID)
}

// ReceiveStockCommand records stock arriving at a location
type ReceiveStockCommand struct {
	SKU         string
	VariantID   string
	LocationID  string
	Quantity    int
	UnitCost    float64
	Reference   string
	PerformedBy string
}

// ReceiveStock increases on-hand stock and records a receipt movement
func (s *LedgerService) ReceiveStock(ctx context.Context, cmd ReceiveStockCommand) (*domain.StockMovement, error) {
	var before int
	level, err := s.mutateWithRetry(ctx, cmd.SKU, cmd.LocationID, cmd.VariantID, func(l *domain.StockLevel) error {
		before = l.QuantityOnHand
		if err := l.Receive(cmd.Quantity, cmd.UnitCost, cmd.Reference); err != nil {
			return errors.MapDomainError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	movement := domain.NewStockMovement(cmd.SKU, cmd.VariantID, cmd.LocationID, domain.MovementReceipt, cmd.Quantity, before, level.QuantityOnHand).
		WithReference(cmd.Reference).
		WithUnitCost(cmd.UnitCost).
		WithPerformedBy(cmd.PerformedBy)
	if err := s.recordMovement(ctx, movement); err != nil {
		return nil, err
	}

	s.enqueueEvents(ctx, levelKey(cmd.SKU, cmd.LocationID, cmd.VariantID), level)

	s.logger.Info("Received stock",
		"sku", cmd.SKU,
		"locationId", cmd.LocationID,
		"quantity", cmd.Quantity,
		"movementId", movement.MovementID,
	)

	return movement, nil
}

// AdjustStockCommand adjusts on-hand stock by a signed delta
type AdjustStockCommand struct {
	SKU          string
	VariantID    string
	LocationID   string
	Delta        int
	MovementType domain.MovementType
	Reason       string
	PerformedBy  string
}

// AdjustStock applies a manual stock adjustment with a movement record
func (s *LedgerService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (*domain.StockMovement, error) {
	movementType := cmd.MovementType
	if movementType == "" {
		if cmd.Delta > 0 {
			movementType = domain.MovementAdjustmentIn
		} else {
			movementType = domain.MovementAdjustmentOut
		}
	}

	var before int
	level, err := s.mutateWithRetry(ctx, cmd.SKU, cmd.LocationID, cmd.VariantID, func(l *domain.StockLevel) error {
		before = l.QuantityOnHand
		if err := l.Adjust(cmd.Delta, movementType, cmd.Reason); err != nil {
			return errors.MapDomainError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	movement := domain.NewStockMovement(cmd.SKU, cmd.VariantID, cmd.LocationID, movementType, cmd.Delta, before, level.QuantityOnHand).
		WithReason(cmd.Reason).
		WithPerformedBy(cmd.PerformedBy)
	if err := s.recordMovement(ctx, movement); err != nil {
		return nil, err
	}

	s.enqueueEvents(ctx, levelKey(cmd.SKU, cmd.LocationID, cmd.VariantID), level)

	s.logger.Info("Adjusted stock",
		"sku", cmd.SKU,
		"locationId", cmd.LocationID,
		"delta", cmd.Delta,
		"movementType", movementType,
	)

	return movement, nil
}

// ReserveStockCommand earmarks quantity for a business document
type ReserveStockCommand struct {
	SKU        string
	VariantID  string
	LocationID string
	Quantity   int
	Reference  string
	ExpiresAt  *time.Time
}

// ReserveStock reserves quantity against available stock. It fails without
// mutating when availability is insufficient.
func (s *LedgerService) ReserveStock(ctx context.Context, cmd ReserveStockCommand) (*domain.StockReservation, error) {
	reservation, err := domain.NewStockReservation(cmd.SKU, cmd.VariantID, cmd.LocationID, cmd.Quantity, cmd.Reference)
	if err != nil {
		return nil, errors.MapDomainError(err)
	}
	if cmd.ExpiresAt != nil {
		reservation.WithExpiry(*cmd.ExpiresAt)
	}

	level, err := s.mutateWithRetry(ctx, cmd.SKU, cmd.LocationID, cmd.VariantID, func(l *domain.StockLevel) error {
		if !l.Reserve(cmd.Quantity) {
			return errors.ErrConflict("insufficient stock available").
				WithDetail("sku", cmd.SKU).
				WithDetail("locationId", cmd.LocationID).
				WithDetail("requested", fmt.Sprintf("%d", cmd.Quantity)).
				WithDetail("available", fmt.Sprintf("%d", l.QuantityAvailable))
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordStockReservation("reserve", false)
		return nil, err
	}

	if err := s.reservations.Save(ctx, reservation); err != nil {
		// Undo the earmark so the row is not left holding phantom stock
		if _, rbErr := s.mutateWithRetry(ctx, cmd.SKU, cmd.LocationID, cmd.VariantID, func(l *domain.StockLevel) error {
			l.Release(cmd.Quantity)
			return nil
		}); rbErr != nil {
			s.logger.WithError(rbErr).Error("Failed to roll back reservation earmark",
				"sku", cmd.SKU,
				"reservationId", reservation.ReservationID,
			)
		}
		s.metrics.RecordStockReservation("reserve", false)
		return nil, errors.ErrInternal("failed to save reservation").Wrap(err)
	}

	movement := domain.NewStockMovement(cmd.SKU, cmd.VariantID, cmd.LocationID, domain.MovementReservation, cmd.Quantity, level.QuantityOnHand, level.QuantityOnHand).
		WithReference(cmd.Reference).
		WithReservation(reservation.ReservationID)
	if err := s.recordMovement(ctx, movement); err != nil {
		return nil, err
	}

	level.AddDomainEvent(&domain.StockReservedEvent{
		ReservationID: reservation.ReservationID,
		SKU:           cmd.SKU,
		VariantID:     cmd.VariantID,
		LocationID:    cmd.LocationID,
		Quantity:      cmd.Quantity,
		Reference:     cmd.Reference,
		ReservedAt:    reservation.CreatedAt,
	})
	s.enqueueEvents(ctx, levelKey(cmd.SKU, cmd.LocationID, cmd.VariantID), level)

	s.metrics.RecordStockReservation("reserve", true)
	s.logger.Info("Reserved stock",
		"sku", cmd.SKU,
		"locationId", cmd.LocationID,
		"quantity", cmd.Quantity,
		"reference", cmd.Reference,
		"reservationId", reservation.ReservationID,
	)

	return reservation, nil
}

// ReleaseReservation returns an active reservation's quantity to available
// stock. Releasing an already released or consumed reservation is a no-op so
// callers can retry safely.
func (s *LedgerService) ReleaseReservation(ctx context.Context, reservationID string) (*domain.StockReservation, error) {
	reservation, err := s.reservations.FindByReservationID(ctx, reservationID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find reservation").Wrap(err)
	}
	if reservation == nil {
		return nil, errors.ErrNotFoundWithID("reservation", reservationID)
	}

	if !reservation.IsActive() {
		s.logger.Info("Release of non-active reservation ignored",
			"reservationId", reservationID,
			"status", reservation.Status,
		)
		return reservation, nil
	}

	level, err := s.mutateWithRetry(ctx, reservation.SKU, reservation.LocationID, reservation.VariantID, func(l *domain.StockLevel) error {
		if !l.Release(reservation.Quantity) {
			return errors.ErrConflict("reserved quantity no longer matches stock level")
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordStockReservation("release", false)
		return nil, err
	}

	if err := reservation.MarkReleased(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		return nil, errors.ErrInternal("failed to save reservation").Wrap(err)
	}

	movement := domain.NewStockMovement(reservation.SKU, reservation.VariantID, reservation.LocationID, domain.MovementRelease, reservation.Quantity, level.QuantityOnHand, level.QuantityOnHand).
		WithReference(reservation.Reference).
		WithReservation(reservation.ReservationID)
	if err := s.recordMovement(ctx, movement); err != nil {
		return nil, err
	}

	level.AddDomainEvent(&domain.StockReleasedEvent{
		ReservationID: reservation.ReservationID,
		SKU:           reservation.SKU,
		LocationID:    reservation.LocationID,
		Quantity:      reservation.Quantity,
		Reference:     reservation.Reference,
		ReleasedAt:    *reservation.ReleasedAt,
	})
	s.enqueueEvents(ctx, levelKey(reservation.SKU, reservation.LocationID, reservation.VariantID), level)

	s.metrics.RecordStockReservation("release", true)
	s.logger.Info("Released reservation",
		"reservationId", reservationID,
		"sku", reservation.SKU,
		"quantity", reservation.Quantity,
	)

	return reservation, nil
}

// ConsumeReservation converts a reservation into an on-hand decrement,
// typically when the goods ship.
func (s *LedgerService) ConsumeReservation(ctx context.Context, reservationID string) (*domain.StockReservation, error) {
	reservation, err := s.reservations.FindByReservationID(ctx, reservationID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find reservation").Wrap(err)
	}
	if reservation == nil {
		return nil, errors.ErrNotFoundWithID("reservation", reservationID)
	}
	if !reservation.IsActive() {
		return nil, errors.ErrConflict("reservation is not active").
			WithDetail("reservationId", reservationID).
			WithDetail("status", string(reservation.Status))
	}

	var before int
	level, err := s.mutateWithRetry(ctx, reservation.SKU, reservation.LocationID, reservation.VariantID, func(l *domain.StockLevel) error {
		before = l.QuantityOnHand
		if err := l.Consume(reservation.Quantity); err != nil {
			return errors.MapDomainError(err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordStockReservation("consume", false)
		return nil, err
	}

	if err := reservation.MarkConsumed(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		return nil, errors.ErrInternal("failed to save reservation").Wrap(err)
	}

	movement := domain.NewStockMovement(reservation.SKU, reservation.VariantID, reservation.LocationID, domain.MovementSale, -reservation.Quantity, before, level.QuantityOnHand).
		WithReference(reservation.Reference).
		WithReservation(reservation.ReservationID)
	if err := s.recordMovement(ctx, movement); err != nil {
		return nil, err
	}

	level.AddDomainEvent(&domain.StockConsumedEvent{
		ReservationID: reservation.ReservationID,
		SKU:           reservation.SKU,
		LocationID:    reservation.LocationID,
		Quantity:      reservation.Quantity,
		Reference:     reservation.Reference,
		ConsumedAt:    *reservation.ConsumedAt,
	})
	s.enqueueEvents(ctx, levelKey(reservation.SKU, reservation.LocationID, reservation.VariantID), level)

	s.metrics.RecordStockReservation("consume", true)
	s.logger.Info("Consumed reservation",
		"reservationId", reservationID,
		"sku", reservation.SKU,
		"quantity", reservation.Quantity,
	)

	return reservation, nil
}

// GetReservation returns a reservation by its business id
func (s *LedgerService) GetReservation(ctx context.Context, reservationID string) (*domain.StockReservation, error) {
	reservation, err := s.reservations.FindByReservationID(ctx, reservationID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find reservation").Wrap(err)
	}
	if reservation == nil {
		return nil, errors.ErrNotFoundWithID("reservation", reservationID)
	}
	return reservation, nil
}

// ReverseMovementCommand reverses a previously recorded movement
type ReverseMovementCommand struct {
	MovementID  string
	Reason      string
	PerformedBy string
}

// ReverseMovement produces a compensating movement for a prior one. Only
// movements younger than the reversal window can be reversed, and only once.
func (s *LedgerService) ReverseMovement(ctx context.Context, cmd ReverseMovementCommand) (*domain.StockMovement, error) {
	original, err := s.movements.FindByMovementID(ctx, cmd.MovementID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find movement").Wrap(err)
	}
	if original == nil {
		return nil, errors.ErrNotFoundWithID("movement", cmd.MovementID)
	}

	now := time.Now().UTC()
	reversal, err := original.Reverse(now, cmd.Reason, cmd.PerformedBy)
	if err != nil {
		return nil, errors.MapDomainError(err)
	}

	var before int
	level, err := s.mutateWithRetry(ctx, original.SKU, original.LocationID, original.VariantID, func(l *domain.StockLevel) error {
		before = l.QuantityOnHand
		if err := l.Adjust(reversal.Quantity, reversal.Type, cmd.Reason); err != nil {
			return errors.MapDomainError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reversal.QuantityBefore = before
	reversal.QuantityAfter = level.QuantityOnHand

	if err := s.recordMovement(ctx, reversal); err != nil {
		return nil, err
	}
	if err := s.movements.MarkReversed(ctx, original.MovementID, reversal.MovementID); err != nil {
		return nil, errors.ErrInternal("failed to mark movement reversed").Wrap(err)
	}

	level.AddDomainEvent(&domain.MovementReversedEvent{
		OriginalMovementID: original.MovementID,
		ReversalMovementID: reversal.MovementID,
		SKU:                original.SKU,
		LocationID:         original.LocationID,
		Quantity:           reversal.Quantity,
		Reason:             cmd.Reason,
		ReversedAt:         now,
	})
	s.enqueueEvents(ctx, levelKey(original.SKU, original.LocationID, original.VariantID), level)

	s.logger.Info("Reversed stock movement",
		"originalMovementId", original.MovementID,
		"reversalMovementId", reversal.MovementID,
		"sku", original.SKU,
	)

	return reversal, nil
}

// ListMovements returns movements matching the filter
func (s *LedgerService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]*domain.StockMovement, int64, error) {
	movements, err := s.movements.Find(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to list movements").Wrap(err)
	}
	total, err := s.movements.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to count movements").Wrap(err)
	}
	return movements, total, nil
}

// LocationAvailability is the availability of one location for a SKU
type LocationAvailability struct {
	LocationID string `json:"locationId"`
	Available  int    `json:"available"`
}

// AvailabilityResult reports availability for a SKU, either scoped to one
// location or aggregated across all of them
type AvailabilityResult struct {
	SKU            string                 `json:"sku"`
	VariantID      string                 `json:"variantId,omitempty"`
	LocationID     string                 `json:"locationId,omitempty"`
	TotalAvailable int                    `json:"totalAvailable"`
	Requested      int                    `json:"requested,omitempty"`
	Sufficient     bool                   `json:"sufficient"`
	Shortage       int                    `json:"shortage"`
	Locations      []LocationAvailability `json:"locations"`
}

// CheckAvailability reports available stock for a SKU. When locationID is
// set the check covers that location only; otherwise it aggregates across
// all active locations in ascending location id order.
func (s *LedgerService) CheckAvailability(ctx context.Context, sku, variantID, locationID string, requested int) (*AvailabilityResult, error) {
	result := &AvailabilityResult{
		SKU:        sku,
		VariantID:  variantID,
		LocationID: locationID,
		Requested:  requested,
		Locations:  make([]LocationAvailability, 0, 1),
	}

	if locationID != "" {
		level, err := s.levels.FindByKey(ctx, sku, locationID, variantID)
		if err != nil {
			return nil, errors.ErrInternal("failed to check availability").Wrap(err)
		}
		if level != nil && level.IsActive {
			result.TotalAvailable = level.QuantityAvailable
			result.Locations = append(result.Locations, LocationAvailability{
				LocationID: level.LocationID,
				Available:  level.QuantityAvailable,
			})
		}
	} else {
		levels, err := s.levels.FindBySKU(ctx, sku, variantID)
		if err != nil {
			return nil, errors.ErrInternal("failed to check availability").Wrap(err)
		}
		for _, level := range levels {
			if !level.IsActive {
				continue
			}
			result.TotalAvailable += level.QuantityAvailable
			result.Locations = append(result.Locations, LocationAvailability{
				LocationID: level.LocationID,
				Available:  level.QuantityAvailable,
			})
		}
	}

	result.Sufficient = requested > 0 && result.TotalAvailable >= requested
	if requested > result.TotalAvailable {
		result.Shortage = requested - result.TotalAvailable
	}

	return result, nil
}

// ExpireStaleReservations releases active reservations past their expiry.
// Used by the background poller; returns the number expired.
func (s *LedgerService) ExpireStaleReservations(ctx context.Context, limit int) (int, error) {
	stale, err := s.reservations.FindActiveExpiredBefore(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, errors.ErrInternal("failed to find expired reservations").Wrap(err)
	}

	expired := 0
	for _, reservation := range stale {
		level, err := s.mutateWithRetry(ctx, reservation.SKU, reservation.LocationID, reservation.VariantID, func(l *domain.StockLevel) error {
			if !l.Release(reservation.Quantity) {
				return errors.ErrConflict("reserved quantity no longer matches stock level")
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to release expired reservation",
				"reservationId", reservation.ReservationID,
			)
			continue
		}

		if err := reservation.MarkExpired(); err != nil {
			continue
		}
		if err := s.reservations.Save(ctx, reservation); err != nil {
			s.logger.WithError(err).Error("Failed to save expired reservation",
				"reservationId", reservation.ReservationID,
			)
			continue
		}

		movement := domain.NewStockMovement(reservation.SKU, reservation.VariantID, reservation.LocationID, domain.MovementRelease, reservation.Quantity, level.QuantityOnHand, level.QuantityOnHand).
			WithReference(reservation.Reference).
			WithReservation(reservation.ReservationID).
			WithReason("reservation expired")
		if err := s.recordMovement(ctx, movement); err != nil {
			s.logger.WithError(err).Error("Failed to record expiry movement",
				"reservationId", reservation.ReservationID,
			)
		}

		expired++
		s.logger.Info("Expired stale reservation",
			"reservationId", reservation.ReservationID,
			"sku", reservation.SKU,
			"quantity", reservation.Quantity,
		)
	}

	return expired, nil
}

package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

type fakeStockLevelRepo struct {
	mu     sync.Mutex
	levels map[string]*domain.StockLevel

	// failSavesWithConflict makes the next N saves return a version conflict
	failSavesWithConflict int
	saveCalls             int
}

func newFakeStockLevelRepo() *fakeStockLevelRepo {
	return &fakeStockLevelRepo{levels: make(map[string]*domain.StockLevel)}
}

func stockKey(sku, locationID, variantID string) string {
	return sku + "|" + locationID + "|" + variantID
}

func copyLevel(l *domain.StockLevel) *domain.StockLevel {
	cp := *l
	cp.DomainEvents = nil
	return &cp
}

func (r *fakeStockLevelRepo) Save(ctx context.Context, level *domain.StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if r.failSavesWithConflict > 0 {
		r.failSavesWithConflict--
		return domain.ErrVersionConflict
	}

	key := stockKey(level.SKU, level.LocationID, level.VariantID)
	if stored, ok := r.levels[key]; ok {
		if stored.Version != level.Version {
			return domain.ErrVersionConflict
		}
	}
	level.Version++
	r.levels[key] = copyLevel(level)
	return nil
}

func (r *fakeStockLevelRepo) FindByKey(ctx context.Context, sku, locationID, variantID string) (*domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.levels[stockKey(sku, locationID, variantID)]; ok {
		return copyLevel(stored), nil
	}
	return nil, nil
}

func (r *fakeStockLevelRepo) FindBySKU(ctx context.Context, sku, variantID string) ([]*domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockLevel
	for _, l := range r.levels {
		if l.SKU == sku && l.VariantID == variantID {
			out = append(out, copyLevel(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (r *fakeStockLevelRepo) Find(ctx context.Context, filter domain.StockLevelFilter) ([]*domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockLevel
	for _, l := range r.levels {
		if filter.SKU != "" && l.SKU != filter.SKU {
			continue
		}
		if filter.LocationID != "" && l.LocationID != filter.LocationID {
			continue
		}
		if filter.ActiveOnly && !l.IsActive {
			continue
		}
		out = append(out, copyLevel(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (r *fakeStockLevelRepo) Count(ctx context.Context, filter domain.StockLevelFilter) (int64, error) {
	levels, _ := r.Find(ctx, filter)
	return int64(len(levels)), nil
}

type fakeMovementRepo struct {
	mu        sync.Mutex
	movements []*domain.StockMovement
}

func newFakeMovementRepo() *fakeMovementRepo {
	return &fakeMovementRepo{}
}

func (r *fakeMovementRepo) Insert(ctx context.Context, movement *domain.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *movement
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *fakeMovementRepo) MarkReversed(ctx context.Context, movementID, reversedByID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.MovementID == movementID {
			m.IsReversed = true
			m.ReversedByID = reversedByID
			return nil
		}
	}
	return domain.ErrReservationNotFound
}

func (r *fakeMovementRepo) FindByMovementID(ctx context.Context, movementID string) (*domain.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.MovementID == movementID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMovementRepo) Find(ctx context.Context, filter domain.MovementFilter) ([]*domain.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockMovement
	for _, m := range r.movements {
		if filter.SKU != "" && m.SKU != filter.SKU {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.Reference != "" && !strings.Contains(m.Reference, filter.Reference) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMovementRepo) Count(ctx context.Context, filter domain.MovementFilter) (int64, error) {
	movements, _ := r.Find(ctx, filter)
	return int64(len(movements)), nil
}

func (r *fakeMovementRepo) byType(movementType domain.MovementType) []*domain.StockMovement {
	movements, _ := r.Find(context.Background(), domain.MovementFilter{Type: movementType})
	return movements
}

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*domain.StockReservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[string]*domain.StockReservation)}
}

func (r *fakeReservationRepo) Save(ctx context.Context, reservation *domain.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reservation
	r.reservations[reservation.ReservationID] = &cp
	return nil
}

func (r *fakeReservationRepo) FindByReservationID(ctx context.Context, reservationID string) (*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.reservations[reservationID]; ok {
		cp := *stored
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeReservationRepo) FindByReference(ctx context.Context, reference string) ([]*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockReservation
	for _, res := range r.reservations {
		if res.Reference == reference {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) FindActiveExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockReservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationActive && res.ExpiresAt != nil && res.ExpiresAt.Before(cutoff) {
			cp := *res
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*outbox.OutboxEvent
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{}
}

func (r *fakeOutboxRepo) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeOutboxRepo) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.OutboxEvent
	for _, e := range r.events {
		if !e.IsPublished() {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range r.events {
		if e.ID == eventID {
			e.PublishedAt = &now
			return nil
		}
	}
	return nil
}

func (r *fakeOutboxRepo) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
		}
	}
	return nil
}

func (r *fakeOutboxRepo) DeletePublished(ctx context.Context, olderThan int64) error {
	return nil
}

func (r *fakeOutboxRepo) GetByID(ctx context.Context, eventID string) (*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeOutboxRepo) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.OutboxEvent
	for _, e := range r.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

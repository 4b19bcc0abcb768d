package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.SalesOrder

	failSavesWithConflict int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.SalesOrder)}
}

func copyOrder(o *domain.SalesOrder) *domain.SalesOrder {
	cp := *o
	cp.DomainEvents = nil
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	cp.ReservationIDs = append([]string(nil), o.ReservationIDs...)
	cp.AuditTrail = append([]domain.AuditEntry(nil), o.AuditTrail...)
	return &cp
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *domain.SalesOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSavesWithConflict > 0 {
		r.failSavesWithConflict--
		return domain.ErrVersionConflict
	}

	if stored, ok := r.orders[order.OrderID]; ok {
		if stored.Version != order.Version {
			return domain.ErrVersionConflict
		}
	}
	order.Version++
	r.orders[order.OrderID] = copyOrder(order)
	return nil
}

func (r *fakeOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.orders[orderID]; ok {
		return copyOrder(stored), nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == orderNumber {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) Find(ctx context.Context, filter domain.OrderFilter) ([]*domain.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SalesOrder
	for _, o := range r.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	return out, nil
}

func (r *fakeOrderRepo) Count(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	orders, _ := r.Find(ctx, filter)
	return int64(len(orders)), nil
}

type fakeQuoteRepo struct {
	mu     sync.Mutex
	quotes map[string]*domain.SalesQuote
}

func newFakeQuoteRepo() *fakeQuoteRepo {
	return &fakeQuoteRepo{quotes: make(map[string]*domain.SalesQuote)}
}

func copyQuote(q *domain.SalesQuote) *domain.SalesQuote {
	cp := *q
	cp.DomainEvents = nil
	cp.Lines = append([]domain.OrderLine(nil), q.Lines...)
	cp.AuditTrail = append([]domain.AuditEntry(nil), q.AuditTrail...)
	return &cp
}

func (r *fakeQuoteRepo) Save(ctx context.Context, quote *domain.SalesQuote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.quotes[quote.QuoteID]; ok {
		if stored.Version != quote.Version {
			return domain.ErrVersionConflict
		}
	}
	quote.Version++
	r.quotes[quote.QuoteID] = copyQuote(quote)
	return nil
}

func (r *fakeQuoteRepo) FindByQuoteID(ctx context.Context, quoteID string) (*domain.SalesQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.quotes[quoteID]; ok {
		return copyQuote(stored), nil
	}
	return nil, nil
}

func (r *fakeQuoteRepo) FindByQuoteNumber(ctx context.Context, quoteNumber string) (*domain.SalesQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quotes {
		if q.QuoteNumber == quoteNumber {
			return copyQuote(q), nil
		}
	}
	return nil, nil
}

func (r *fakeQuoteRepo) FindByWorkflowID(ctx context.Context, workflowID string) (*domain.SalesQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quotes {
		if q.ApprovalWorkflowID == workflowID {
			return copyQuote(q), nil
		}
	}
	return nil, nil
}

func (r *fakeQuoteRepo) Find(ctx context.Context, filter domain.QuoteFilter) ([]*domain.SalesQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SalesQuote
	for _, q := range r.quotes {
		if filter.CustomerID != "" && q.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, copyQuote(q))
	}
	return out, nil
}

func (r *fakeQuoteRepo) Count(ctx context.Context, filter domain.QuoteFilter) (int64, error) {
	quotes, _ := r.Find(ctx, filter)
	return int64(len(quotes)), nil
}

// fakeInventoryGateway tracks reserve, release, and consume calls against a
// scriptable per-SKU availability table
type fakeInventoryGateway struct {
	mu        sync.Mutex
	available map[string]int

	reserved map[string]reservedStock
	released []string
	consumed []string

	reserveCalls []string
	failConsume  bool
	failRelease  bool
}

type reservedStock struct {
	sku      string
	quantity int
}

func newFakeInventoryGateway(available map[string]int) *fakeInventoryGateway {
	return &fakeInventoryGateway{
		available: available,
		reserved:  make(map[string]reservedStock),
	}
}

func (g *fakeInventoryGateway) Reserve(ctx context.Context, req ReservationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reserveCalls = append(g.reserveCalls, req.SKU)
	if g.available[req.SKU] < req.Quantity {
		return "", fmt.Errorf("insufficient stock available: requested %d, available %d",
			req.Quantity, g.available[req.SKU])
	}
	g.available[req.SKU] -= req.Quantity

	reservationID := uuid.New().String()
	g.reserved[reservationID] = reservedStock{sku: req.SKU, quantity: req.Quantity}
	return reservationID, nil
}

func (g *fakeInventoryGateway) Release(ctx context.Context, reservationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failRelease {
		return fmt.Errorf("inventory service unavailable")
	}
	g.released = append(g.released, reservationID)
	if stock, ok := g.reserved[reservationID]; ok {
		g.available[stock.sku] += stock.quantity
		delete(g.reserved, reservationID)
	}
	return nil
}

func (g *fakeInventoryGateway) Consume(ctx context.Context, reservationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failConsume {
		return fmt.Errorf("inventory service unavailable")
	}
	g.consumed = append(g.consumed, reservationID)
	delete(g.reserved, reservationID)
	return nil
}

func (g *fakeInventoryGateway) CheckAvailability(ctx context.Context, sku, variantID string, quantity int) (*AvailabilityCheck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := g.available[sku]
	return &AvailabilityCheck{TotalAvailable: total, Sufficient: total >= quantity}, nil
}

func (g *fakeInventoryGateway) activeReservations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reserved)
}

type fakeApprovalRequester struct {
	mu       sync.Mutex
	requests []string
	fail     bool
}

func (a *fakeApprovalRequester) RequestApproval(ctx context.Context, subjectType, subjectID, requestedBy string, amount float64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", fmt.Errorf("approval service unavailable")
	}
	workflowID := fmt.Sprintf("wf-%d", len(a.requests)+1)
	a.requests = append(a.requests, subjectID)
	return workflowID, nil
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

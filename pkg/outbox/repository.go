package outbox

import "context"

// Repository persists outbox events. Aggregates (orders, quotes, stock
// levels, approval workflows) enqueue their domain events here in the same
// unit of work as the aggregate save; the publisher drains the queue.
type Repository interface {
	// Save enqueues a single outbox event
	Save(ctx context.Context, event *OutboxEvent) error

	// SaveAll enqueues the events one aggregate mutation produced
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished retrieves unpublished events up to the given limit,
	// oldest first, so ordering per aggregate is preserved
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished deletes published events older than the given age in seconds
	DeletePublished(ctx context.Context, olderThan int64) error

	// GetByID retrieves an outbox event by ID
	GetByID(ctx context.Context, eventID string) (*OutboxEvent, error)

	// FindByAggregateID retrieves all events for one aggregate, for tracing
	// what a given order or workflow emitted
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}

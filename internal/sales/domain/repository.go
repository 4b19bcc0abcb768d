package domain

import "context"

// OrderFilter narrows order queries
type OrderFilter struct {
	CustomerID string
	Status     OrderStatus
	Limit      int
	Offset     int
}

// OrderRepository persists sales order aggregates
type OrderRepository interface {
	// Save persists the aggregate with optimistic version check. Returns
	// ErrVersionConflict when the stored version no longer matches.
	Save(ctx context.Context, order *SalesOrder) error

	// FindByOrderID returns an order by its business id, nil when absent
	FindByOrderID(ctx context.Context, orderID string) (*SalesOrder, error)

	// FindByOrderNumber returns an order by its number, nil when absent
	FindByOrderNumber(ctx context.Context, orderNumber string) (*SalesOrder, error)

	Find(ctx context.Context, filter OrderFilter) ([]*SalesOrder, error)

	Count(ctx context.Context, filter OrderFilter) (int64, error)
}

// QuoteFilter narrows quote queries
type QuoteFilter struct {
	CustomerID string
	Status     QuoteStatus
	Limit      int
	Offset     int
}

// QuoteRepository persists sales quote aggregates
type QuoteRepository interface {
	Save(ctx context.Context, quote *SalesQuote) error

	// FindByQuoteID returns a quote by its business id, nil when absent
	FindByQuoteID(ctx context.Context, quoteID string) (*SalesQuote, error)

	// FindByQuoteNumber returns a quote by its number, nil when absent
	FindByQuoteNumber(ctx context.Context, quoteNumber string) (*SalesQuote, error)

	// FindByWorkflowID returns the quote linked to an approval workflow
	FindByWorkflowID(ctx context.Context, workflowID string) (*SalesQuote, error)

	Find(ctx context.Context, filter QuoteFilter) ([]*SalesQuote, error)

	Count(ctx context.Context, filter QuoteFilter) (int64, error)
}

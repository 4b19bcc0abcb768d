package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
	"github.com/erp-platform/order-lifecycle/pkg/cloudevents"
	"github.com/erp-platform/order-lifecycle/pkg/errors"
	"github.com/erp-platform/order-lifecycle/pkg/kafka"
	"github.com/erp-platform/order-lifecycle/pkg/logging"
	"github.com/erp-platform/order-lifecycle/pkg/metrics"
	"github.com/erp-platform/order-lifecycle/pkg/outbox"
)

// DefaultDiscountApprovalThreshold is the overall discount percentage above
// which a quote needs sign-off before it can be sent
const DefaultDiscountApprovalThreshold = 10.0

// ApprovalRequester starts an approval workflow for a subject and returns
// the workflow id. Implemented by the approval context.
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, subjectType, subjectID, requestedBy string, amount float64) (string, error)
}

// QuoteService implements the application layer for the quote lifecycle
type QuoteService struct {
	quotes            domain.QuoteRepository
	orders            domain.OrderRepository
	approvals         ApprovalRequester
	outboxRepo        outbox.Repository
	events            *cloudevents.EventFactory
	logger            *logging.Logger
	metrics           *metrics.Metrics
	discountThreshold float64
}

// NewQuoteService creates a new QuoteService
func NewQuoteService(
	quotes domain.QuoteRepository,
	orders domain.OrderRepository,
	approvals ApprovalRequester,
	outboxRepo outbox.Repository,
	logger *logging.Logger,
	m *metrics.Metrics,
	discountThreshold float64,
) *QuoteService {
	if discountThreshold <= 0 {
		discountThreshold = DefaultDiscountApprovalThreshold
	}
	return &QuoteService{
		quotes:            quotes,
		orders:            orders,
		approvals:         approvals,
		outboxRepo:        outboxRepo,
		events:            cloudevents.NewEventFactory(cloudevents.SourceSales),
		logger:            logger.WithComponent("quote-service"),
		metrics:           m,
		discountThreshold: discountThreshold,
	}
}

func (s *QuoteService) enqueueEvents(ctx context.Context, quote *domain.SalesQuote) {
	for _, event := range quote.DomainEvents {
		ce := s.events.CreateEventWithCorrelation(ctx, event.EventType(), "quote/"+quote.QuoteID, event, logging.CorrelationIDFromContext(ctx))
		outboxEvent, err := outbox.NewOutboxEvent(quote.QuoteID, "sales_quote", kafka.Topics.SalesEvents, ce)
		if err != nil {
			s.logger.WithError(err).Error("Failed to build outbox event", "eventType", event.EventType())
			continue
		}
		if err := s.outboxRepo.Save(ctx, outboxEvent); err != nil {
			s.logger.WithError(err).Error("Failed to enqueue outbox event", "eventType", event.EventType())
		}
	}
	quote.ClearDomainEvents()
}

func (s *QuoteService) save(ctx context.Context, quote *domain.SalesQuote) error {
	if err := s.quotes.Save(ctx, quote); err != nil {
		if err == domain.ErrVersionConflict {
			return errors.ErrConflict("quote was modified concurrently").Wrap(err)
		}
		return errors.ErrInternal("failed to save quote").Wrap(err)
	}
	s.enqueueEvents(ctx, quote)
	return nil
}

func (s *QuoteService) load(ctx context.Context, quoteID string) (*domain.SalesQuote, error) {
	quote, err := s.quotes.FindByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find quote").Wrap(err)
	}
	if quote == nil {
		return nil, errors.ErrNotFoundWithID("quote", quoteID)
	}
	return quote, nil
}

// CreateQuoteCommand creates a new draft quote
type CreateQuoteCommand struct {
	CustomerID      string
	Currency        string
	TaxRate         float64
	DiscountPercent float64
	ValidityDays    int
	Lines           []OrderLineInput
}

// CreateQuote creates a draft quote with its line items
func (s *QuoteService) CreateQuote(ctx context.Context, cmd CreateQuoteCommand) (*domain.SalesQuote, error) {
	currency := cmd.Currency
	if currency == "" {
		currency = "USD"
	}

	quoteNumber := fmt.Sprintf("QT-%s", strings.ToUpper(uuid.New().String()[:8]))
	quote := domain.NewSalesQuote(quoteNumber, cmd.CustomerID, currency)
	quote.TaxRate = cmd.TaxRate

	for _, line := range cmd.Lines {
		if err := quote.AddLine(line.SKU, line.VariantID, line.Description, line.Quantity, line.UnitPrice, line.Discount); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}
	if cmd.DiscountPercent > 0 {
		if err := quote.SetDiscountPercent(cmd.DiscountPercent); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}
	if cmd.ValidityDays > 0 {
		quote.SetValidUntil(time.Now().UTC().AddDate(0, 0, cmd.ValidityDays))
	}

	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}

	s.logger.Info("Created quote",
		"quoteId", quote.QuoteID,
		"quoteNumber", quote.QuoteNumber,
		"customerId", quote.CustomerID,
		"discountPercent", quote.DiscountPercent,
	)
	return quote, nil
}

// GetQuote returns a quote by its business id
func (s *QuoteService) GetQuote(ctx context.Context, quoteID string) (*domain.SalesQuote, error) {
	return s.load(ctx, quoteID)
}

// ListQuotes returns quotes matching the filter
func (s *QuoteService) ListQuotes(ctx context.Context, filter domain.QuoteFilter) ([]*domain.SalesQuote, int64, error) {
	quotes, err := s.quotes.Find(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to list quotes").Wrap(err)
	}
	total, err := s.quotes.Count(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrInternal("failed to count quotes").Wrap(err)
	}
	return quotes, total, nil
}

// SendQuote sends a quote to the customer. A quote discounted beyond the
// approval threshold is routed into an approval workflow instead and stays
// pending until the workflow reports back.
func (s *QuoteService) SendQuote(ctx context.Context, quoteID, requestedBy string) (*domain.SalesQuote, error) {
	quote, err := s.load(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	if quote.Status == domain.QuoteDraft && quote.RequiresApproval(s.discountThreshold) {
		workflowID, err := s.approvals.RequestApproval(ctx, "sales_quote", quote.QuoteID, requestedBy, quote.GrandTotal)
		if err != nil {
			return nil, errors.ErrInternal("failed to start approval workflow").Wrap(err)
		}
		if err := quote.SubmitForApproval(workflowID); err != nil {
			return nil, errors.MapDomainError(err)
		}
		if err := s.save(ctx, quote); err != nil {
			return nil, err
		}
		s.logger.Info("Quote routed to approval",
			"quoteId", quote.QuoteID,
			"workflowId", workflowID,
			"discountPercent", quote.DiscountPercent,
		)
		return quote, nil
	}

	if err := quote.MarkSent(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}

	s.logger.Info("Sent quote", "quoteId", quote.QuoteID, "quoteNumber", quote.QuoteNumber)
	return quote, nil
}

// HandleApprovalDecision applies an approval workflow's outcome to the quote
// that is waiting on it. An approved quote is marked approved and sent; a
// rejected one is rejected with the workflow's reason.
func (s *QuoteService) HandleApprovalDecision(ctx context.Context, workflowID string, approved bool, decidedBy, reason string) (*domain.SalesQuote, error) {
	quote, err := s.quotes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find quote for workflow").Wrap(err)
	}
	if quote == nil {
		return nil, errors.ErrNotFoundWithID("quote for workflow", workflowID)
	}

	if approved {
		if err := quote.Approve(decidedBy); err != nil {
			return nil, errors.MapDomainError(err)
		}
		if err := quote.MarkSent(); err != nil {
			return nil, errors.MapDomainError(err)
		}
	} else {
		if reason == "" {
			reason = "discount approval rejected"
		}
		if err := quote.Reject(reason); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}

	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}

	s.logger.Info("Applied approval decision to quote",
		"quoteId", quote.QuoteID,
		"workflowId", workflowID,
		"approved", approved,
	)
	return quote, nil
}

// AcceptQuote records customer acceptance
func (s *QuoteService) AcceptQuote(ctx context.Context, quoteID string) (*domain.SalesQuote, error) {
	quote, err := s.load(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := quote.Accept(); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// RejectQuote records customer rejection
func (s *QuoteService) RejectQuote(ctx context.Context, quoteID, reason string) (*domain.SalesQuote, error) {
	quote, err := s.load(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := quote.Reject(reason); err != nil {
		return nil, errors.MapDomainError(err)
	}
	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// ConvertQuote converts an accepted quote into a draft order
func (s *QuoteService) ConvertQuote(ctx context.Context, quoteID string) (*domain.SalesOrder, error) {
	quote, err := s.load(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	orderNumber := fmt.Sprintf("SO-%s", strings.ToUpper(uuid.New().String()[:8]))
	order, err := quote.ConvertToOrder(orderNumber)
	if err != nil {
		return nil, errors.MapDomainError(err)
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, errors.ErrInternal("failed to save converted order").Wrap(err)
	}
	if err := s.save(ctx, quote); err != nil {
		return nil, err
	}

	// The new order's events belong to its own aggregate, not the quote's
	for _, event := range order.DomainEvents {
		ce := s.events.CreateEventWithCorrelation(ctx, event.EventType(), "order/"+order.OrderID, event, logging.CorrelationIDFromContext(ctx))
		ce.OrderNumber = order.OrderNumber
		outboxEvent, buildErr := outbox.NewOutboxEvent(order.OrderID, "sales_order", kafka.Topics.SalesEvents, ce)
		if buildErr != nil {
			continue
		}
		if saveErr := s.outboxRepo.Save(ctx, outboxEvent); saveErr != nil {
			s.logger.WithError(saveErr).Error("Failed to enqueue order event", "eventType", event.EventType())
		}
	}
	order.ClearDomainEvents()

	s.metrics.RecordQuoteConverted()
	s.logger.Info("Converted quote to order",
		"quoteId", quote.QuoteID,
		"orderId", order.OrderID,
		"orderNumber", order.OrderNumber,
	)
	return order, nil
}

// ExpireStaleQuotes flags open quotes past their validity window. Used by
// the background poller; returns the number expired.
func (s *QuoteService) ExpireStaleQuotes(ctx context.Context, limit int) (int, error) {
	open, err := s.quotes.Find(ctx, domain.QuoteFilter{Status: domain.QuoteSent, Limit: limit})
	if err != nil {
		return 0, errors.ErrInternal("failed to list quotes").Wrap(err)
	}

	now := time.Now().UTC()
	expired := 0
	for _, quote := range open {
		if !quote.IsPastValidity(now) {
			continue
		}
		if err := quote.MarkExpired(); err != nil {
			continue
		}
		if err := s.save(ctx, quote); err != nil {
			s.logger.WithError(err).Error("Failed to save expired quote", "quoteId", quote.QuoteID)
			continue
		}
		expired++
		s.logger.Info("Expired quote", "quoteId", quote.QuoteID, "quoteNumber", quote.QuoteNumber)
	}
	return expired, nil
}

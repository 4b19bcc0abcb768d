package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDraftQuote(t *testing.T) *SalesQuote {
	t.Helper()
	quote := NewSalesQuote("QT-2001", "CUST-1", "USD")
	require.NoError(t, quote.AddLine("SKU-A", "", "Widget A", 10, 10.0, 0))
	return quote
}

func TestNewSalesQuote(t *testing.T) {
	quote := NewSalesQuote("QT-2001", "CUST-1", "USD")
	assert.Equal(t, QuoteDraft, quote.Status)
	assert.NotEmpty(t, quote.QuoteID)
	require.Len(t, quote.DomainEvents, 1)
	assert.Equal(t, "erp.quote.created", quote.DomainEvents[0].EventType())
}

func TestQuoteDiscountPercentTotals(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.SetDiscountPercent(20))

	assert.Equal(t, 100.0, quote.Subtotal)
	assert.Equal(t, 20.0, quote.DiscountTotal)
	assert.Equal(t, 80.0, quote.GrandTotal)
}

func TestQuoteRequiresApproval(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.SetDiscountPercent(15))

	assert.True(t, quote.RequiresApproval(10))
	assert.False(t, quote.RequiresApproval(20))
}

func TestQuoteApprovalFlow(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.SetDiscountPercent(25))

	require.NoError(t, quote.SubmitForApproval("wf-1"))
	assert.Equal(t, QuotePendingApproval, quote.Status)
	assert.Equal(t, "wf-1", quote.ApprovalWorkflowID)

	// Cannot send while approval is pending
	assert.Error(t, quote.MarkSent())

	require.NoError(t, quote.Approve("director-1"))
	assert.Equal(t, QuoteApproved, quote.Status)

	require.NoError(t, quote.MarkSent())
	assert.Equal(t, QuoteSent, quote.Status)
}

func TestQuoteSendDirectlyFromDraft(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.MarkSent())
	assert.Equal(t, QuoteSent, quote.Status)
}

func TestQuoteRejectFromApproval(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.SetDiscountPercent(25))
	require.NoError(t, quote.SubmitForApproval("wf-1"))

	require.NoError(t, quote.Reject("discount too deep"))
	assert.Equal(t, QuoteRejected, quote.Status)
	assert.Equal(t, "discount too deep", quote.RejectReason)
}

func TestQuoteAcceptOnlyWhenSent(t *testing.T) {
	quote := buildDraftQuote(t)
	assert.Error(t, quote.Accept())

	require.NoError(t, quote.MarkSent())
	require.NoError(t, quote.Accept())
	assert.Equal(t, QuoteAccepted, quote.Status)
}

func TestQuoteAcceptAfterValidityRejected(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.MarkSent())
	quote.SetValidUntil(time.Now().UTC().Add(-time.Hour))

	assert.ErrorIs(t, quote.Accept(), ErrQuoteExpired)
	assert.Equal(t, QuoteSent, quote.Status)
}

func TestQuoteExpire(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.MarkSent())
	quote.SetValidUntil(time.Now().UTC().Add(-time.Minute))

	assert.True(t, quote.IsPastValidity(time.Now().UTC()))
	require.NoError(t, quote.MarkExpired())
	assert.Equal(t, QuoteExpired, quote.Status)
	assert.Error(t, quote.Accept())
}

func TestQuoteConvertToOrder(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.SetDiscountPercent(10))
	require.NoError(t, quote.MarkSent())
	require.NoError(t, quote.Accept())

	order, err := quote.ConvertToOrder("SO-5001")
	require.NoError(t, err)

	assert.Equal(t, QuoteConverted, quote.Status)
	assert.Equal(t, order.OrderID, quote.ConvertedOrderID)
	assert.Equal(t, quote.QuoteID, order.QuoteID)
	assert.Equal(t, OrderDraft, order.Status)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "SKU-A", order.Lines[0].SKU)
	assert.InDelta(t, quote.GrandTotal, order.GrandTotal, 0.001)
}

func TestQuoteConvertOnlyFromAccepted(t *testing.T) {
	quote := buildDraftQuote(t)

	_, err := quote.ConvertToOrder("SO-5001")
	assert.Error(t, err)

	require.NoError(t, quote.MarkSent())
	_, err = quote.ConvertToOrder("SO-5001")
	assert.Error(t, err)
	assert.Equal(t, QuoteSent, quote.Status)
}

func TestQuoteConvertTwiceRejected(t *testing.T) {
	quote := buildDraftQuote(t)
	require.NoError(t, quote.MarkSent())
	require.NoError(t, quote.Accept())

	_, err := quote.ConvertToOrder("SO-5001")
	require.NoError(t, err)

	_, err = quote.ConvertToOrder("SO-5002")
	assert.Error(t, err)
}

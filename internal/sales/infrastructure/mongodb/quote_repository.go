package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
)

const quotesCollection = "sales_quotes"

// QuoteRepository implements domain.QuoteRepository on MongoDB
type QuoteRepository struct {
	collection *mongo.Collection
}

func NewQuoteRepository(db *mongo.Database) *QuoteRepository {
	repo := &QuoteRepository{collection: db.Collection(quotesCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *QuoteRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "quoteId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_quote_id"),
		},
		{
			Keys:    bson.D{{Key: "quoteNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_quote_number"),
		},
		{Keys: bson.D{{Key: "approvalWorkflowId", Value: 1}}},
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "validUntil", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save persists the aggregate with the same optimistic version check as orders
func (r *QuoteRepository) Save(ctx context.Context, quote *domain.SalesQuote) error {
	quote.UpdatedAt = time.Now().UTC()

	if quote.Version == 0 {
		quote.Version = 1
		if _, err := r.collection.InsertOne(ctx, quote); err != nil {
			quote.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrVersionConflict
			}
			return err
		}
		return nil
	}

	loadedVersion := quote.Version
	quote.Version = loadedVersion + 1

	filter := bson.M{
		"quoteId": quote.QuoteID,
		"version": loadedVersion,
	}

	res, err := r.collection.ReplaceOne(ctx, filter, quote)
	if err != nil {
		quote.Version = loadedVersion
		return err
	}
	if res.MatchedCount == 0 {
		quote.Version = loadedVersion
		return domain.ErrVersionConflict
	}
	return nil
}

// FindByQuoteID returns a quote by its business id, nil when absent
func (r *QuoteRepository) FindByQuoteID(ctx context.Context, quoteID string) (*domain.SalesQuote, error) {
	return r.findOne(ctx, bson.M{"quoteId": quoteID})
}

// FindByQuoteNumber returns a quote by its number, nil when absent
func (r *QuoteRepository) FindByQuoteNumber(ctx context.Context, quoteNumber string) (*domain.SalesQuote, error) {
	return r.findOne(ctx, bson.M{"quoteNumber": quoteNumber})
}

// FindByWorkflowID returns the quote linked to an approval workflow
func (r *QuoteRepository) FindByWorkflowID(ctx context.Context, workflowID string) (*domain.SalesQuote, error) {
	return r.findOne(ctx, bson.M{"approvalWorkflowId": workflowID})
}

func (r *QuoteRepository) findOne(ctx context.Context, filter bson.M) (*domain.SalesQuote, error) {
	var quote domain.SalesQuote
	err := r.collection.FindOne(ctx, filter).Decode(&quote)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func buildQuoteFilter(filter domain.QuoteFilter) bson.M {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customerId"] = filter.CustomerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

// Find returns quotes matching the filter, newest first
func (r *QuoteRepository) Find(ctx context.Context, filter domain.QuoteFilter) ([]*domain.SalesQuote, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, buildQuoteFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var quotes []*domain.SalesQuote
	if err := cursor.All(ctx, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *QuoteRepository) Count(ctx context.Context, filter domain.QuoteFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildQuoteFilter(filter))
}

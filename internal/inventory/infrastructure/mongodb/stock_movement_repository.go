package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
)

const stockMovementsCollection = "stock_movements"

// StockMovementRepository implements domain.StockMovementRepository on
// MongoDB. Movements are append-only; the only permitted update is flagging
// a movement as reversed.
type StockMovementRepository struct {
	collection *mongo.Collection
}

func NewStockMovementRepository(db *mongo.Database) *StockMovementRepository {
	repo := &StockMovementRepository{collection: db.Collection(stockMovementsCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *StockMovementRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "movementId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sku", Value: 1}, {Key: "occurredAt", Value: -1}}},
		{Keys: bson.D{{Key: "locationId", Value: 1}, {Key: "occurredAt", Value: -1}}},
		{Keys: bson.D{{Key: "reference", Value: 1}}},
		{Keys: bson.D{{Key: "reservationId", Value: 1}}},
		{Keys: bson.D{{Key: "occurredAt", Value: -1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

func (r *StockMovementRepository) Insert(ctx context.Context, movement *domain.StockMovement) error {
	_, err := r.collection.InsertOne(ctx, movement)
	return err
}

func (r *StockMovementRepository) MarkReversed(ctx context.Context, movementID, reversedByID string) error {
	filter := bson.M{"movementId": movementID, "isReversed": false}
	update := bson.M{
		"$set": bson.M{
			"isReversed":   true,
			"reversedById": reversedByID,
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("movement %s not found or already reversed", movementID)
	}
	return nil
}

func (r *StockMovementRepository) FindByMovementID(ctx context.Context, movementID string) (*domain.StockMovement, error) {
	var movement domain.StockMovement
	err := r.collection.FindOne(ctx, bson.M{"movementId": movementID}).Decode(&movement)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func buildMovementFilter(filter domain.MovementFilter) bson.M {
	query := bson.M{}
	if filter.SKU != "" {
		query["sku"] = filter.SKU
	}
	if filter.LocationID != "" {
		query["locationId"] = filter.LocationID
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Reference != "" {
		query["reference"] = filter.Reference
	}
	if filter.Since != nil || filter.Until != nil {
		window := bson.M{}
		if filter.Since != nil {
			window["$gte"] = *filter.Since
		}
		if filter.Until != nil {
			window["$lt"] = *filter.Until
		}
		query["occurredAt"] = window
	}
	return query
}

func (r *StockMovementRepository) Find(ctx context.Context, filter domain.MovementFilter) ([]*domain.StockMovement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, buildMovementFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var movements []*domain.StockMovement
	if err := cursor.All(ctx, &movements); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *StockMovementRepository) Count(ctx context.Context, filter domain.MovementFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildMovementFilter(filter))
}

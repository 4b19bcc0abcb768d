package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
)

const stockLevelsCollection = "stock_levels"

// StockLevelRepository implements domain.StockLevelRepository on MongoDB
type StockLevelRepository struct {
	collection *mongo.Collection
}

func NewStockLevelRepository(db *mongo.Database) *StockLevelRepository {
	repo := &StockLevelRepository{collection: db.Collection(stockLevelsCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *StockLevelRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sku", Value: 1},
				{Key: "locationId", Value: 1},
				{Key: "variantId", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_stock_key"),
		},
		{Keys: bson.D{{Key: "sku", Value: 1}}},
		{Keys: bson.D{{Key: "locationId", Value: 1}}},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "quantityAvailable", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save persists the aggregate. New rows insert at version 1; existing rows
// update only when the stored version matches the loaded one, otherwise the
// save fails with a version conflict.
func (r *StockLevelRepository) Save(ctx context.Context, level *domain.StockLevel) error {
	level.UpdatedAt = time.Now().UTC()

	if level.Version == 0 {
		level.Version = 1
		if _, err := r.collection.InsertOne(ctx, level); err != nil {
			level.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				// Another writer created the row first
				return domain.ErrVersionConflict
			}
			return err
		}
		return nil
	}

	loadedVersion := level.Version
	level.Version = loadedVersion + 1

	filter := bson.M{
		"sku":        level.SKU,
		"locationId": level.LocationID,
		"variantId":  level.VariantID,
		"version":    loadedVersion,
	}

	res, err := r.collection.ReplaceOne(ctx, filter, level)
	if err != nil {
		level.Version = loadedVersion
		return err
	}
	if res.MatchedCount == 0 {
		level.Version = loadedVersion
		return domain.ErrVersionConflict
	}
	return nil
}

// FindByKey returns the level for a key, nil when absent
func (r *StockLevelRepository) FindByKey(ctx context.Context, sku, locationID, variantID string) (*domain.StockLevel, error) {
	filter := bson.M{
		"sku":        sku,
		"locationId": locationID,
		"variantId":  variantID,
	}

	var level domain.StockLevel
	err := r.collection.FindOne(ctx, filter).Decode(&level)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// FindBySKU returns all levels for a SKU ordered by locationId ascending
func (r *StockLevelRepository) FindBySKU(ctx context.Context, sku, variantID string) ([]*domain.StockLevel, error) {
	filter := bson.M{"sku": sku, "variantId": variantID}
	opts := options.Find().SetSort(bson.D{{Key: "locationId", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var levels []*domain.StockLevel
	if err := cursor.All(ctx, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func buildLevelFilter(filter domain.StockLevelFilter) bson.M {
	query := bson.M{}
	if filter.SKU != "" {
		query["sku"] = filter.SKU
	}
	if filter.LocationID != "" {
		query["locationId"] = filter.LocationID
	}
	if filter.VariantID != "" {
		query["variantId"] = filter.VariantID
	}
	if filter.ActiveOnly {
		query["isActive"] = true
	}
	if filter.BelowReorderPoint {
		query["reorderPoint"] = bson.M{"$gt": 0}
		query["$expr"] = bson.M{
			"$lte": bson.A{"$quantityAvailable", "$reorderPoint"},
		}
	}
	return query
}

// Find returns levels matching the filter ordered by sku then locationId
func (r *StockLevelRepository) Find(ctx context.Context, filter domain.StockLevelFilter) ([]*domain.StockLevel, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "sku", Value: 1},
		{Key: "locationId", Value: 1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, buildLevelFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var levels []*domain.StockLevel
	if err := cursor.All(ctx, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *StockLevelRepository) Count(ctx context.Context, filter domain.StockLevelFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildLevelFilter(filter))
}

package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/sales/domain"
)

const ordersCollection = "sales_orders"

// OrderRepository implements domain.OrderRepository on MongoDB
type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	repo := &OrderRepository{collection: db.Collection(ordersCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *OrderRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_order_id"),
		},
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_order_number"),
		},
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save persists the aggregate. New orders insert at version 1; existing ones
// update only when the stored version matches the loaded one.
func (r *OrderRepository) Save(ctx context.Context, order *domain.SalesOrder) error {
	order.UpdatedAt = time.Now().UTC()

	if order.Version == 0 {
		order.Version = 1
		if _, err := r.collection.InsertOne(ctx, order); err != nil {
			order.Version = 0
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrVersionConflict
			}
			return err
		}
		return nil
	}

	loadedVersion := order.Version
	order.Version = loadedVersion + 1

	filter := bson.M{
		"orderId": order.OrderID,
		"version": loadedVersion,
	}

	res, err := r.collection.ReplaceOne(ctx, filter, order)
	if err != nil {
		order.Version = loadedVersion
		return err
	}
	if res.MatchedCount == 0 {
		order.Version = loadedVersion
		return domain.ErrVersionConflict
	}
	return nil
}

// FindByOrderID returns an order by its business id, nil when absent
func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.SalesOrder, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID})
}

// FindByOrderNumber returns an order by its number, nil when absent
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.SalesOrder, error) {
	return r.findOne(ctx, bson.M{"orderNumber": orderNumber})
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*domain.SalesOrder, error) {
	var order domain.SalesOrder
	err := r.collection.FindOne(ctx, filter).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func buildOrderFilter(filter domain.OrderFilter) bson.M {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customerId"] = filter.CustomerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

// Find returns orders matching the filter, newest first
func (r *OrderRepository) Find(ctx context.Context, filter domain.OrderFilter) ([]*domain.SalesOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, buildOrderFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*domain.SalesOrder
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) Count(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, buildOrderFilter(filter))
}

package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erp-platform/order-lifecycle/internal/inventory/domain"
)

const stockReservationsCollection = "stock_reservations"

// StockReservationRepository implements domain.StockReservationRepository on MongoDB
type StockReservationRepository struct {
	collection *mongo.Collection
}

func NewStockReservationRepository(db *mongo.Database) *StockReservationRepository {
	repo := &StockReservationRepository{collection: db.Collection(stockReservationsCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *StockReservationRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "reservationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reference", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "sku", Value: 1}, {Key: "locationId", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

func (r *StockReservationRepository) Save(ctx context.Context, reservation *domain.StockReservation) error {
	reservation.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"reservationId": reservation.ReservationID}
	update := bson.M{"$set": reservation}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *StockReservationRepository) FindByReservationID(ctx context.Context, reservationID string) (*domain.StockReservation, error) {
	var reservation domain.StockReservation
	err := r.collection.FindOne(ctx, bson.M{"reservationId": reservationID}).Decode(&reservation)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *StockReservationRepository) FindByReference(ctx context.Context, reference string) ([]*domain.StockReservation, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"reference": reference})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations []*domain.StockReservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *StockReservationRepository) FindActiveExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.StockReservation, error) {
	filter := bson.M{
		"status":    domain.ReservationActive,
		"expiresAt": bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations []*domain.StockReservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

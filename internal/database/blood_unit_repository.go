// server/internal/database/blood_unit_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blood-bank-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const BloodUnitsCollection = "blood_units"

// BloodUnitRepository stores blood units in MongoDB.
type BloodUnitRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewBloodUnitRepository(db *mongo.Database, timeout time.Duration) *BloodUnitRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BloodUnitRepository{coll: db.Collection(BloodUnitsCollection), timeout: timeout}
}

func (r *BloodUnitRepository) Insert(ctx context.Context, unit *models.BloodUnit) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.coll.InsertOne(ctx, unit)
	if err != nil {
		return fmt.Errorf("insert blood unit: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		unit.ID = oid
	}
	return nil
}

// ClaimOldestAvailable flips the soonest-expiring available unit in a single
// findAndModify. The status filter is re-checked by the server on write, so
// concurrent claims never return the same unit.
func (r *BloodUnitRepository) ClaimOldestAvailable(ctx context.Context, hospitalID, bloodType, newStatus, reason string, at time.Time) (*models.BloodUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "expiry_date", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var unit models.BloodUnit
	err := r.coll.FindOneAndUpdate(ctx, claimFilter(hospitalID, bloodType), claimUpdate(newStatus, reason, at), opts).Decode(&unit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim blood unit: %w", err)
	}
	return &unit, nil
}

func claimFilter(hospitalID, bloodType string) bson.M {
	return bson.M{
		"hospital_id": hospitalID,
		"blood_type":  bloodType,
		"status":      models.UnitStatusAvailable,
	}
}

func claimUpdate(newStatus, reason string, at time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"status":            newStatus,
		"status_reason":     reason,
		"status_changed_at": at,
	}}
}

func (r *BloodUnitRepository) AggregateAvailableByType(ctx context.Context, hospitalID string, expiringBefore time.Time) ([]models.StockLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coll.Aggregate(ctx, availableStockPipeline(hospitalID, expiringBefore))
	if err != nil {
		return nil, fmt.Errorf("aggregate available stock: %w", err)
	}
	defer cursor.Close(ctx)

	var levels []models.StockLevel
	if err := cursor.All(ctx, &levels); err != nil {
		return nil, fmt.Errorf("decode stock levels: %w", err)
	}
	return levels, nil
}

// availableStockPipeline groups the available pool by blood type.
func availableStockPipeline(hospitalID string, expiringBefore time.Time) mongo.Pipeline {
	expiringSoon := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$lte", Value: bson.A{"$expiry_date", expiringBefore}}},
		1,
		0,
	}}}

	// $min skips the nulls produced for units already expiring soon.
	laterExpiry := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$gt", Value: bson.A{"$expiry_date", expiringBefore}}},
		"$expiry_date",
		nil,
	}}}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "hospital_id", Value: hospitalID},
			{Key: "status", Value: models.UnitStatusAvailable},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$blood_type"},
			{Key: "total_quantity_ml", Value: bson.D{{Key: "$sum", Value: "$quantity_ml"}}},
			{Key: "unit_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "expiring_soon", Value: bson.D{{Key: "$sum", Value: expiringSoon}}},
			{Key: "next_expiring_at", Value: bson.D{{Key: "$min", Value: laterExpiry}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func (r *BloodUnitRepository) ListAvailableExpiringBefore(ctx context.Context, hospitalID string, before time.Time) ([]models.BloodUnit, error) {
	filter := bson.M{
		"hospital_id": hospitalID,
		"status":      models.UnitStatusAvailable,
		"expiry_date": bson.M{"$lte": before},
	}
	return r.find(ctx, filter, bson.D{{Key: "expiry_date", Value: 1}})
}

func (r *BloodUnitRepository) FindByBatch(ctx context.Context, hospitalID, batchID string) ([]models.BloodUnit, error) {
	filter := bson.M{"hospital_id": hospitalID, "batch_id": batchID}
	return r.find(ctx, filter, bson.D{{Key: "collection_date", Value: 1}})
}

func (r *BloodUnitRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.BloodUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("query blood units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []models.BloodUnit
	if err := cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("decode blood units: %w", err)
	}
	return units, nil
}

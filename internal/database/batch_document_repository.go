package database

import (
	"context"
	"fmt"
	"time"

	"blood-bank-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BatchDocumentRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewBatchDocumentRepository(db *mongo.Database, timeout time.Duration) *BatchDocumentRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BatchDocumentRepository{coll: db.Collection(BatchDocumentsCollection), timeout: timeout}
}

func (r *BatchDocumentRepository) Insert(ctx context.Context, doc *models.BatchDocument) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert batch document: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return nil
}

func (r *BatchDocumentRepository) ListByBatch(ctx context.Context, hospitalID, batchID string) ([]models.BatchDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coll.Find(ctx,
		bson.M{"hospital_id": hospitalID, "batch_id": batchID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("query batch documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.BatchDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode batch documents: %w", err)
	}
	return docs, nil
}

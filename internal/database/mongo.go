package database

import (
	"context"
	"fmt"
	"time"

	"blood-bank-api-server/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultTimeout = 10 * time.Second

	UsersCollection          = "users"
	HospitalsCollection      = "hospitals"
	BatchDocumentsCollection = "batch_documents"
)

// Connect opens a client, pings the primary and returns the configured database.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(cfg.DBName), nil
}

// EnsureIndexes creates the indexes the ledger queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		BloodUnitsCollection: {
			// claim and summary: available pool per type, oldest expiry first
			{Keys: bson.D{{Key: "hospital_id", Value: 1}, {Key: "blood_type", Value: 1}, {Key: "status", Value: 1}, {Key: "expiry_date", Value: 1}}},
			{Keys: bson.D{{Key: "hospital_id", Value: 1}, {Key: "status", Value: 1}, {Key: "expiry_date", Value: 1}}},
			{Keys: bson.D{{Key: "hospital_id", Value: 1}, {Key: "batch_id", Value: 1}}},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		HospitalsCollection: {
			{Keys: bson.D{{Key: "hospital_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		BatchDocumentsCollection: {
			{Keys: bson.D{{Key: "hospital_id", Value: 1}, {Key: "batch_id", Value: 1}}},
		},
	}

	for name, specs := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

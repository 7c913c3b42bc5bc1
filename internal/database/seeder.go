// server/internal/database/seeder.go
package database

import (
	"context"
	"fmt"
	"strings"

	"blood-bank-api-server/config"
	"blood-bank-api-server/internal/auth"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SeedSuperAdmin creates the initial superadmin account if it does not exist.
func SeedSuperAdmin(ctx context.Context, db *mongo.Database, cfg config.SeedConfig, log *logger.Logger) error {
	if cfg.SuperAdminEmail == "" || cfg.SuperAdminPassword == "" {
		log.Warn("Super admin seed credentials not configured. Seeding skipped.")
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.SuperAdminEmail))

	userCollection := db.Collection(UsersCollection)

	count, err := userCollection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return err
	}
	if count > 0 {
		log.Info("Super admin already exists. Seeding skipped.", "email", email)
		return nil
	}

	log.Info("Super admin not found. Seeding...", "email", email)
	hashedPassword, err := auth.HashPassword(cfg.SuperAdminPassword)
	if err != nil {
		return err
	}

	superAdmin := models.User{
		Email:      email,
		Name:       "Super Admin",
		Password:   hashedPassword,
		Role:       models.RoleSuperAdmin,
		HospitalID: "system",
		Status:     "active",
	}

	_, err = userCollection.InsertOne(ctx, superAdmin)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("seed super admin: %w", err)
	}

	log.Info("Super admin seeded successfully.")
	return nil
}

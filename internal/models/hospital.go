// server/internal/models/hospital.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Hospital struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HospitalID string             `bson:"hospital_id" json:"hospital_id"` // user-friendly unique ID, e.g. "city-general"
	Name       string             `bson:"name" json:"name"`
	Address    Address            `bson:"address" json:"address"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Status     string             `bson:"status" json:"status"` // ACTIVE, INACTIVE
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

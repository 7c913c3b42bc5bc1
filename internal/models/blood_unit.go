// server/internal/models/blood_unit.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BloodUnit is one recorded blood deposit or batch. Only Status (and its
// audit fields) ever changes after insert.
type BloodUnit struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HospitalID      string             `bson:"hospital_id" json:"hospital_id"`
	BloodType       string             `bson:"blood_type" json:"blood_type"`
	BatchID         string             `bson:"batch_id" json:"batch_id"`
	QuantityMl      float64            `bson:"quantity_ml" json:"quantity_ml"`
	CollectionDate  time.Time          `bson:"collection_date" json:"collection_date"`
	ExpiryDate      time.Time          `bson:"expiry_date" json:"expiry_date"`
	Status          string             `bson:"status" json:"status"`
	StatusReason    string             `bson:"status_reason,omitempty" json:"status_reason,omitempty"`
	StatusChangedAt *time.Time         `bson:"status_changed_at,omitempty" json:"status_changed_at,omitempty"`
	DonorID         string             `bson:"donor_id,omitempty" json:"donor_id,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

const (
	UnitStatusAvailable = "available"
	UnitStatusAllocated = "allocated"
	UnitStatusExpired   = "expired"
	UnitStatusDisposed  = "disposed"
)

// BloodTypes is the canonical ABO/Rh enumeration, sorted by label.
var BloodTypes = []string{"A+", "A-", "AB+", "AB-", "B+", "B-", "O+", "O-"}

// IsBloodType reports whether s is one of the eight canonical labels.
func IsBloodType(s string) bool {
	for _, t := range BloodTypes {
		if t == s {
			return true
		}
	}
	return false
}

// StockLevel is one row of the inventory summary.
type StockLevel struct {
	BloodType       string  `bson:"_id" json:"blood_type"`
	TotalQuantityMl float64 `bson:"total_quantity_ml" json:"total_quantity_ml"`
	UnitCount       int     `bson:"unit_count" json:"unit_count"`
	ExpiringSoon    int     `bson:"expiring_soon" json:"expiring_soon"`
	IsCritical      bool    `bson:"-" json:"is_critical"`

	// NextExpiringAt is the earliest expiry among units not yet counted in
	// ExpiringSoon. Nil when every unit is already counted.
	NextExpiringAt *time.Time `bson:"next_expiring_at,omitempty" json:"-"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchDocument is a traceability file (test certificate, consent form)
// attached to a collection batch.
type BatchDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HospitalID   string             `bson:"hospital_id" json:"hospital_id"`
	BatchID      string             `bson:"batch_id" json:"batch_id"`
	MediaPointer `bson:",inline"`
	UploadedBy   string    `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// server/internal/models/common.go
package models

// Address is a structured postal address with coordinates.
type Address struct {
	FullText  string  `bson:"full_text" json:"full_text"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// MediaPointer references a file stored on S3 or a compatible service.
type MediaPointer struct {
	URL      string `bson:"url" json:"url"`
	FileName string `bson:"file_name" json:"file_name"`
	FileType string `bson:"file_type" json:"file_type"`
}

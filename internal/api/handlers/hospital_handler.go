// server/internal/api/handlers/hospital_handler.go
package handlers

import (
	"net/http"
	"time"

	"blood-bank-api-server/internal/database"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type HospitalHandler struct {
	DB  *mongo.Database
	Log *logger.Logger
}

type AddressRequest struct {
	FullText  string  `json:"full_text" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

type HospitalRequest struct {
	HospitalID string         `json:"hospital_id" binding:"required,max=64"`
	Name       string         `json:"name" binding:"required"`
	Address    AddressRequest `json:"address" binding:"required"`
	Phone      string         `json:"phone"`
	Status     string         `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
}

func (r HospitalRequest) address() models.Address {
	return models.Address{
		FullText:  r.Address.FullText,
		Latitude:  r.Address.Latitude,
		Longitude: r.Address.Longitude,
	}
}

// CreateHospital registers a new hospital.
func (h *HospitalHandler) CreateHospital(c *gin.Context) {
	var req HospitalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	ctx := c.Request.Context()
	collection := h.DB.Collection(database.HospitalsCollection)

	count, err := collection.CountDocuments(ctx, bson.M{"hospital_id": req.HospitalID})
	if err != nil {
		h.Log.Error("count hospitals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error checking for hospital"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Hospital with this ID already exists"})
		return
	}

	status := req.Status
	if status == "" {
		status = "ACTIVE"
	}
	now := time.Now()
	hospital := models.Hospital{
		HospitalID: req.HospitalID,
		Name:       req.Name,
		Address:    req.address(),
		Phone:      req.Phone,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	result, err := collection.InsertOne(ctx, hospital)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Hospital with this ID already exists"})
			return
		}
		h.Log.Error("insert hospital", "hospital_id", req.HospitalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create hospital"})
		return
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		hospital.ID = oid
	}

	c.JSON(http.StatusCreated, hospital)
}

// GetAllHospitals lists hospitals, optionally filtered by ?status=.
func (h *HospitalHandler) GetAllHospitals(c *gin.Context) {
	ctx := c.Request.Context()
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}

	cursor, err := h.DB.Collection(database.HospitalsCollection).Find(ctx, filter)
	if err != nil {
		h.Log.Error("query hospitals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query hospitals"})
		return
	}
	defer cursor.Close(ctx)

	var hospitals []models.Hospital
	if err = cursor.All(ctx, &hospitals); err != nil {
		h.Log.Error("decode hospitals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode hospitals"})
		return
	}
	if hospitals == nil {
		hospitals = []models.Hospital{}
	}

	c.JSON(http.StatusOK, hospitals)
}

// GetHospitalByID returns one hospital by its hospital_id.
func (h *HospitalHandler) GetHospitalByID(c *gin.Context) {
	var hospital models.Hospital
	err := h.DB.Collection(database.HospitalsCollection).
		FindOne(c.Request.Context(), bson.M{"hospital_id": c.Param("id")}).
		Decode(&hospital)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hospital not found"})
		} else {
			h.Log.Error("find hospital", "hospital_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve hospital"})
		}
		return
	}

	c.JSON(http.StatusOK, hospital)
}

// UpdateHospital replaces the editable fields of a hospital. hospital_id
// cannot change.
func (h *HospitalHandler) UpdateHospital(c *gin.Context) {
	id := c.Param("id")

	var req HospitalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	set := bson.M{
		"name":       req.Name,
		"address":    req.address(),
		"phone":      req.Phone,
		"updated_at": time.Now(),
	}
	if req.Status != "" {
		set["status"] = req.Status
	}

	result, err := h.DB.Collection(database.HospitalsCollection).
		UpdateOne(c.Request.Context(), bson.M{"hospital_id": id}, bson.M{"$set": set})
	if err != nil {
		h.Log.Error("update hospital", "hospital_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update hospital"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hospital not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Hospital updated successfully"})
}

// DeleteHospital marks a hospital INACTIVE. Blood units keep their
// hospital_id, so the record itself is never removed.
func (h *HospitalHandler) DeleteHospital(c *gin.Context) {
	id := c.Param("id")

	result, err := h.DB.Collection(database.HospitalsCollection).UpdateOne(c.Request.Context(),
		bson.M{"hospital_id": id},
		bson.M{"$set": bson.M{"status": "INACTIVE", "updated_at": time.Now()}},
	)
	if err != nil {
		h.Log.Error("deactivate hospital", "hospital_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete hospital"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hospital not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Hospital deactivated successfully"})
}

package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"blood-bank-api-server/internal/api/middleware"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxDocumentSize = 10 << 20

var allowedDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// DocumentUploader stores a file and returns its URL.
type DocumentUploader interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error)
}

type BatchDocumentStore interface {
	Insert(ctx context.Context, doc *models.BatchDocument) error
	ListByBatch(ctx context.Context, hospitalID, batchID string) ([]models.BatchDocument, error)
}

type BatchHandler struct {
	Ledger    *ledger.Ledger
	Documents BatchDocumentStore
	Uploader  DocumentUploader // nil when S3 is not configured
	Log       *logger.Logger
}

// GetBatch returns every unit of a collection batch with its documents.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	ctx := c.Request.Context()
	batchID := c.Param("batchId")

	units, err := h.Ledger.Batch(ctx, hospitalID(c), batchID)
	if err != nil {
		respondLedgerError(c, h.Log, err, "Failed to load batch")
		return
	}

	docs, err := h.Documents.ListByBatch(ctx, hospitalID(c), batchID)
	if err != nil {
		h.Log.Error("list batch documents", "hospital_id", hospitalID(c), "batch_id", batchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch documents"})
		return
	}
	if docs == nil {
		docs = []models.BatchDocument{}
	}

	if len(units) == 0 && len(docs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	statusCounts := map[string]int{}
	var total float64
	for _, u := range units {
		statusCounts[u.Status]++
		total += u.QuantityMl
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":          batchID,
		"units":             units,
		"documents":         docs,
		"total_quantity_ml": total,
		"status_counts":     statusCounts,
	})
}

// UploadDocument attaches a traceability file to an existing batch.
func (h *BatchHandler) UploadDocument(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Document storage is not configured"})
		return
	}

	ctx := c.Request.Context()
	hospital := hospitalID(c)
	batchID := c.Param("batchId")

	units, err := h.Ledger.Batch(ctx, hospital, batchID)
	if err != nil {
		respondLedgerError(c, h.Log, err, "Failed to load batch")
		return
	}
	if len(units) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxDocumentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file must be at most 10MB"})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedDocumentTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be a PDF, JPEG or PNG"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	fileName := filepath.Base(fileHeader.Filename)
	objectKey := fmt.Sprintf("batches/%s/%s/%s-%s", hospital, batchID, strings.ToLower(uuid.NewString()[:8]), fileName)
	url, err := h.Uploader.UploadFile(ctx, file, objectKey, contentType)
	if err != nil {
		h.Log.Error("upload batch document", "hospital_id", hospital, "batch_id", batchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload document"})
		return
	}

	doc := &models.BatchDocument{
		HospitalID: hospital,
		BatchID:    batchID,
		MediaPointer: models.MediaPointer{
			URL:      url,
			FileName: fileName,
			FileType: contentType,
		},
		UploadedBy: c.GetString(middleware.ContextUserEmail),
		CreatedAt:  time.Now(),
	}
	if err := h.Documents.Insert(ctx, doc); err != nil {
		h.Log.Error("save batch document", "hospital_id", hospital, "batch_id", batchID, "url", url, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save document record"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

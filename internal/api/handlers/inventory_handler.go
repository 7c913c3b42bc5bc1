package handlers

import (
	"net/http"
	"strconv"

	"blood-bank-api-server/internal/api/middleware"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/logger"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	Ledger *ledger.Ledger
	Log    *logger.Logger
}

type UpdateStockRequest struct {
	BloodType      string  `json:"blood_type" binding:"required,bloodtype"`
	QuantityChange float64 `json:"quantity_change" binding:"required,gt=0"`
	Operation      string  `json:"operation" binding:"required,oneof=add remove"`
	Reason         string  `json:"reason" binding:"omitempty,oneof=donation request expired disposed"`
	BatchID        string  `json:"batch_id" binding:"omitempty,max=64"`
	DonorID        string  `json:"donor_id" binding:"omitempty,max=64"`
}

func hospitalID(c *gin.Context) string {
	return c.GetString(middleware.ContextHospitalID)
}

// GetInventory returns the stock summary of the caller's hospital.
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	inv, err := h.Ledger.GetInventory(c.Request.Context(), hospitalID(c))
	if err != nil {
		respondLedgerError(c, h.Log, err, "Failed to load blood inventory")
		return
	}
	c.JSON(http.StatusOK, inv)
}

// UpdateStock adds a unit or removes units from the caller's hospital.
func (h *InventoryHandler) UpdateStock(c *gin.Context) {
	var req UpdateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	res, err := h.Ledger.UpdateStock(c.Request.Context(), ledger.UpdateRequest{
		HospitalID:     hospitalID(c),
		BloodType:      req.BloodType,
		QuantityChange: req.QuantityChange,
		Operation:      req.Operation,
		Reason:         req.Reason,
		BatchID:        req.BatchID,
		DonorID:        req.DonorID,
	})
	if err != nil {
		respondLedgerError(c, h.Log, err, "Failed to update blood stock")
		return
	}

	if res.Operation == ledger.OperationAdd {
		c.JSON(http.StatusCreated, gin.H{
			"message":   "Blood stock added successfully",
			"operation": res.Operation,
			"unit":      res.Unit,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Blood stock removed successfully",
		"operation":     res.Operation,
		"reason":        res.Reason,
		"units_updated": res.UnitsUpdated,
	})
}

// GetExpiring lists available units expiring within ?days= (default 7).
func (h *InventoryHandler) GetExpiring(c *gin.Context) {
	days := ledger.DefaultExpiringDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = n
	}

	report, err := h.Ledger.ListExpiring(c.Request.Context(), hospitalID(c), days)
	if err != nil {
		respondLedgerError(c, h.Log, err, "Failed to load expiring blood units")
		return
	}
	c.JSON(http.StatusOK, report)
}

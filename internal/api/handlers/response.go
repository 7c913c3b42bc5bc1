package handlers

import (
	"errors"
	"net/http"

	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/logger"

	"github.com/gin-gonic/gin"
)

// respondLedgerError maps ledger errors to status codes. Validation and
// empty-pool errors are safe to show. Anything else is logged and replaced
// by fallback.
func respondLedgerError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	switch {
	case ledger.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNoUnitsAvailable):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		log.Error(fallback,
			"hospital_id", hospitalID(c),
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

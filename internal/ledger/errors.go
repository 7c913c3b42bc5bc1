package ledger

import "errors"

// Validation failures. Nothing is written when one of these is returned.
var (
	ErrInvalidBloodType = errors.New("invalid blood type")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidQuantity  = errors.New("quantity change must be a positive number")
	ErrInvalidReason    = errors.New("invalid reason")
	ErrInvalidDays      = errors.New("days must be between 0 and 365")
	ErrInvalidBatch     = errors.New("batch id is required")
)

// ErrNoUnitsAvailable means the available pool for the blood type is empty.
var ErrNoUnitsAvailable = errors.New("no available units to remove")

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidBloodType) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidReason) ||
		errors.Is(err, ErrInvalidDays) ||
		errors.Is(err, ErrInvalidBatch)
}

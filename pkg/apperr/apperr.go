package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the approval engine. Callers match with errors.Is; the
// HTTP layer and bulk operations translate them to codes via Code.
var (
	ErrNotFound         = errors.New("approval request not found")
	ErrAlreadyProcessed = errors.New("approval request already processed")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// Machine-readable codes, used as bulk failure reasons and API error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// Validationf wraps ErrValidation with a human-readable detail.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Code maps err to its machine-readable code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyProcessed):
		return CodeAlreadyProcessed
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

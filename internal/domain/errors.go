package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ForbiddenError reports a role or ownership failure.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// Forbidden builds a ForbiddenError.
func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

// ConflictError reports a duplicate unique key, a duplicate open request,
// a double state transition or an already-converted maintenance request.
// EntityID carries the competing entity's identifier where applicable.
type ConflictError struct {
	EntityID string
	Detail   string
}

func (e *ConflictError) Error() string {
	if e.EntityID == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s (existing: %s)", e.Detail, e.EntityID)
}

// Conflict builds a ConflictError.
func Conflict(entityID, detail string) error {
	return &ConflictError{EntityID: entityID, Detail: detail}
}

// InsufficientStockError reports a stock mutation that would leave an item
// with negative stock.
type InsufficientStockError struct {
	ItemID    string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", e.Available, e.Requested)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var se *InsufficientStockError
	return errors.As(err, &se)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the coarse classification surfaced to API callers.
type ErrorKind string

const (
	ErrKindValidation    ErrorKind = "validation"
	ErrKindPermission    ErrorKind = "permission"
	ErrKindConflict      ErrorKind = "conflict"
	ErrKindGDSTransient  ErrorKind = "gds_transient"
	ErrKindGDSBusiness   ErrorKind = "gds_business"
	ErrKindIndeterminate ErrorKind = "indeterminate"
	ErrKindNotFound      ErrorKind = "not_found"
	ErrKindInternal      ErrorKind = "internal"
)

var ErrNotFound = errors.New("not found")

// ValidationError reports every failed local precondition, not just the
// first. No side effects have occurred when it is returned.
type ValidationError struct {
	Conditions []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Conditions, "; ")
}

// PermissionError is a rule-engine veto. No GDS call was made.
type PermissionError struct {
	RuleID string
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason != "" {
		return "operation denied: " + e.Reason
	}
	return "operation denied by rule " + e.RuleID
}

// ConflictError means a mutating operation is already in flight for the
// same booking/ticket identity. The second request is rejected, not queued.
type ConflictError struct {
	EntityID  string
	Operation string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("operation %s already in flight for %s", e.Operation, e.EntityID)
}

// GDSTransientError is a network-level failure. Retryable for read-only
// operations only.
type GDSTransientError struct {
	Vendor string
	Err    error
}

func (e *GDSTransientError) Error() string {
	return fmt.Sprintf("gds %s transient failure: %v", e.Vendor, e.Err)
}

func (e *GDSTransientError) Unwrap() error { return e.Err }

// GDSBusinessError means the vendor rejected the request on its merits.
// Terminal; the vendor message is surfaced verbatim.
type GDSBusinessError struct {
	Vendor  string
	Code    string
	Message string
}

func (e *GDSBusinessError) Error() string {
	return fmt.Sprintf("gds %s rejected request: %s", e.Vendor, e.Message)
}

// IndeterminateError means the outcome of a mutating GDS call is unknown.
// The entity has been parked and must be reconciled against retrieve_booking
// before any further mutating operation.
type IndeterminateError struct {
	EntityID  string
	Operation string
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("outcome of %s for %s is unknown, reconciliation required", e.Operation, e.EntityID)
}

// KindOf maps an error to its API classification.
func KindOf(err error) ErrorKind {
	var (
		ve *ValidationError
		pe *PermissionError
		ce *ConflictError
		te *GDSTransientError
		be *GDSBusinessError
		ie *IndeterminateError
	)
	switch {
	case errors.As(err, &ve):
		return ErrKindValidation
	case errors.As(err, &pe):
		return ErrKindPermission
	case errors.As(err, &ce):
		return ErrKindConflict
	case errors.As(err, &te):
		return ErrKindGDSTransient
	case errors.As(err, &be):
		return ErrKindGDSBusiness
	case errors.As(err, &ie):
		return ErrKindIndeterminate
	case errors.Is(err, ErrNotFound):
		return ErrKindNotFound
	}
	return ErrKindInternal
}

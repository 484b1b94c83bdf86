// Package shared contains the error model and identifiers used by the fee
// domain and the layers around it. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every DomainError carries one of them, so callers can test
// for a whole class with errors.Is without knowing the specific error.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidEntity      = errors.New("invalid entity")
	ErrValidation         = errors.New("validation error")
	ErrInvalidID          = errors.New("invalid ID")
	ErrNegativeValue      = errors.New("value cannot be negative")
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // "fees"
	Op      string // operation that failed, e.g. "PayFee"
	Kind    error  // one of the kinds above
	Message string // safe to show to API clients
	Err     error  // underlying cause, optional
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the cause, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the kind as well as anything in the cause chain.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps err with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Fee errors.
var (
	ErrInvalidAmount    = NewDomainError("fees", "NewAmount", ErrNegativeValue, "amount cannot be negative")
	ErrAmountOutOfRange = NewDomainError("fees", "AddFee", ErrValidation, "amount must be below 1000000000000 with at most 2 decimal places")
	ErrFeeNotFound      = NewDomainError("fees", "PayFee", ErrNotFound, "fee not found")
	ErrFeeAlreadyPaid   = NewDomainError("fees", "PayFee", ErrAlreadyProcessed, "fee already paid")
	ErrAccountNotFound  = NewDomainError("fees", "GetAccount", ErrNotFound, "student fee account not found")
	ErrInvalidRecord    = NewDomainError("fees", "FromRecord", ErrInvalidEntity, "stored fee account is corrupt")
	ErrInvalidStudent   = NewDomainError("fees", "Validate", ErrInvalidID, "invalid student ID")
	ErrStoreUnavailable = NewDomainError("fees", "Store", ErrServiceUnavailable, "fee account store unavailable")
)

// StoreUnavailable wraps a storage failure that may succeed later.
func StoreUnavailable(op string, err error) error {
	return WrapError("fees", op, ErrServiceUnavailable, ErrStoreUnavailable.Message, err)
}

// IsNotFound reports a missing account or fee.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports an operation that was already applied.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}

// IsValidation reports bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrNegativeValue)
}

// IsRetryable reports a failure a client may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

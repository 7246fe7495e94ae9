package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes provider failure modes.
type ErrorCategory string

const (
	// ErrorTimeout indicates the call exceeded its deadline. Retriable by
	// the caller; never retried internally.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorOutage indicates the provider could not be reached at all.
	ErrorOutage ErrorCategory = "outage"

	// ErrorBadData indicates an unexpected HTTP status or malformed JSON.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorRejected indicates the provider responded with success=false.
	// The provider's own message is carried verbatim.
	ErrorRejected ErrorCategory = "rejected"
)

// Error wraps a provider failure with its normalized category.
type Error struct {
	Category   ErrorCategory
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds a categorized provider error.
func NewError(category ErrorCategory, message string, underlying error) *Error {
	return &Error{Category: category, Message: message, Underlying: underlying}
}

// CategoryOf extracts the category from an error chain, defaulting to
// ErrorOutage for uncategorized failures.
func CategoryOf(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorOutage
}

// IsTimeout reports whether the error chain is a provider timeout.
func IsTimeout(err error) bool {
	return CategoryOf(err) == ErrorTimeout
}

package service

import (
	"errors"
	"fmt"
)

// RejectReason explains why an input never reached the external provider.
type RejectReason string

const (
	ReasonEmptyInput      RejectReason = "empty_input"
	ReasonInvalidFormat   RejectReason = "invalid_format"
	ReasonReservedAddress RejectReason = "reserved_address"
)

// RejectedError marks input the caller must fix. Never retried.
type RejectedError struct {
	Reason  RejectReason
	Address string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("input rejected [%s]: %q", e.Reason, e.Address)
}

// Rejected builds a RejectedError for an address.
func Rejected(reason RejectReason, address string) *RejectedError {
	return &RejectedError{Reason: reason, Address: address}
}

// RejectionOf extracts the rejection reason from an error chain, or "" when
// the error is not an input rejection.
func RejectionOf(err error) RejectReason {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

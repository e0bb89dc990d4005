package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation               = errors.New("validation failed")
	ErrBillingCycleTooShort     = errors.New("course duration too short for billing cycle")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrMissingPaymentInstrument = errors.New("payment instrument required")
	ErrNoEligibleAccounts       = errors.New("no eligible accounts")
	ErrUnmatchedCycle           = errors.New("cycle has no charge record")
	ErrChargeNotPayable         = errors.New("charge is not payable yet")
	ErrInvalidTransition        = errors.New("invalid status transition")
)

// ValidationError describes a structural problem with an operation's input.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

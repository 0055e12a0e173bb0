package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// ErrInvalidTransition matches any InvalidTransitionError via errors.Is
var ErrInvalidTransition = errors.New("invalid loan state transition")

// InvalidTransitionError is returned when an operation is attempted from a
// status the transition table does not allow it from.
type InvalidTransitionError struct {
	From  LoanStatus
	Event LoanEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a loan in status %q", e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

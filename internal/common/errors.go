// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Model errors.
	ErrModelNotTrained  = errors.New("model not trained")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrModelVersionSkew = errors.New("persisted model schema version mismatch")
	ErrNoTransactions   = errors.New("no transactions in window")

	// Pipeline errors.
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrTrainingCooldown   = errors.New("training cooldown active")
	ErrTrainingCapReached = errors.New("concurrent training cap reached")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

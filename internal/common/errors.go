// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("rule version conflict")

	// Rule validation errors.
	ErrUnknownCategory   = errors.New("category not in taxonomy")
	ErrPatternTooGeneric = errors.New("pattern too generic")
	ErrNarrowerField     = errors.New("existing rule matches a narrower field")

	// External classifier errors.
	ErrBudgetExceeded = errors.New("cost budget exceeded")
	ErrRateLimit      = errors.New("rate limit exceeded")
	ErrMaxRetries     = errors.New("max retries exceeded")

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

// IsRetryable determines if an error should trigger a retry. Budget
// rejections are never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrBudgetExceeded) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

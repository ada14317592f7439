// Package errors provides the standardized error taxonomy for the listing
// lifecycle and outbound-communication pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeAlreadyInProgress ErrorCode = "ALREADY_IN_PROGRESS"
	ErrCodePrecondition      ErrorCode = "PRECONDITION_FAILED"

	ErrCodeGenerationParseFailed ErrorCode = "GENERATION_PARSE_FAILED"
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"

	ErrCodeDeliveryRejected    ErrorCode = "DELIVERY_REJECTED"
	ErrCodeDeliveryUnavailable ErrorCode = "DELIVERY_UNAVAILABLE"

	ErrCodePartialFailure ErrorCode = "PARTIAL_FAILURE"

	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeAuthorizationFailed  ErrorCode = "AUTHORIZATION_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is lets errors.Is match two StandardErrors by code, so callers can compare
// against a constructor result without caring about message or timestamp.
func (e *StandardError) Is(target error) bool {
	var std *StandardError
	if errors.As(target, &std) {
		return e.Code == std.Code
	}
	return false
}

// ==========================
// Error Constructors
// ==========================

// NewValidationError creates a non-retryable bad-input error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable missing-entity error.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError signals a concurrent mutation; the caller should re-read
// and retry.
func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Concurrent update detected",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyInProgressError signals a workflow already running on the entity.
func NewAlreadyInProgressError(listingID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyInProgress,
		Message:   "Enrichment already in progress",
		Details:   fmt.Sprintf("listingId: %s", listingID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPreconditionError signals the entity is not in a state that allows the
// requested operation.
func NewPreconditionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePrecondition,
		Message:   "Operation not allowed in current state",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationParseError creates a non-retryable content-shape error; the
// prompt or template needs fixing, retrying will not help.
func NewGenerationParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationParseFailed,
		Message:   "Generated content could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationUnavailableError is returned once the generator's own retry
// budget is exhausted.
func NewGenerationUnavailableError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeGenerationUnavailable,
		Message:   "Content generation service unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationRefusedError marks a permanent provider refusal, such as a
// rejected credential or a malformed request; the same call cannot succeed
// on retry.
func NewGenerationRefusedError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeGenerationUnavailable,
		Message:   "Content generation service refused the request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryRejectedError creates a permanent provider-side rejection error.
func NewDeliveryRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryRejected,
		Message:   "Email delivery rejected by provider",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryUnavailableError creates a transient delivery error; the
// orchestrator owns the retry budget for these.
func NewDeliveryUnavailableError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeDeliveryUnavailable,
		Message:   "Email delivery service unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPartialFailureError signals an external effect that committed while the
// local state write failed. Requires operator reconciliation.
func NewPartialFailureError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePartialFailure,
		Message:   "External effect committed but state update failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthorizationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthorizationFailed,
		Message:   "Not permitted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Utility Functions
// ==========================

// AsStandard extracts a StandardError from err, wrapping unknown errors as
// internal so the API layer always has a code to report.
func AsStandard(err error) *StandardError {
	var std *StandardError
	if errors.As(err, &std) {
		return std
	}
	return NewInternalError(err)
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var std *StandardError
	if errors.As(err, &std) {
		return std.Code == code
	}
	return false
}

// IsRetryable reports whether err is worth retrying at some layer.
func IsRetryable(err error) bool {
	var std *StandardError
	if errors.As(err, &std) {
		return std.Retryable
	}
	return false
}

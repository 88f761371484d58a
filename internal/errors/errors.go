package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ResyncError is the structured error type for Resync.
// It provides rich context for error handling, logging, and user presentation.
type ResyncError struct {
	// Code is the unique error code (e.g., "ERR_201_CONNECTION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Storage, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ResyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ResyncError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ResyncError.
func (e *ResyncError) Is(target error) bool {
	if t, ok := target.(*ResyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ResyncError) WithDetail(key, value string) *ResyncError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ResyncError) WithSuggestion(suggestion string) *ResyncError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ResyncError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ResyncError {
	return &ResyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ResyncError from an existing error.
// The error's message becomes the ResyncError message.
func Wrap(code string, err error) *ResyncError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NewValidationError creates an input validation error. Never retried.
func NewValidationError(message string, cause error) *ResyncError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NewEmptyKeyError reports an empty identifier where one is required.
func NewEmptyKeyError(what string) *ResyncError {
	return New(ErrCodeEmptyKey, fmt.Sprintf("%s must not be empty", what), nil)
}

// NewDimensionMismatchError reports an embedding with the wrong dimension.
func NewDimensionMismatchError(expected, got int) *ResyncError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// NewConnectionError creates a storage connection error. Retryable.
func NewConnectionError(message string, cause error) *ResyncError {
	return New(ErrCodeConnection, message, cause)
}

// NewQueryError creates a storage query error. Not retryable.
func NewQueryError(message string, cause error) *ResyncError {
	return New(ErrCodeQuery, message, cause)
}

// NewPoolExhaustedError reports that no pooled connection was available.
func NewPoolExhaustedError(cause error) *ResyncError {
	return New(ErrCodePoolExhausted, "connection pool exhausted", cause).
		WithSuggestion("increase pool max size or reduce concurrent load")
}

// NewDataParsingError reports corrupted stored data. Callers skip the
// entry and continue; batch operations never halt on this.
func NewDataParsingError(message string, cause error) *ResyncError {
	return New(ErrCodeDataParsing, message, cause)
}

// NewLockUnavailableError reports that a lock is held elsewhere.
// The caller decides retry cadence.
func NewLockUnavailableError(key string) *ResyncError {
	return New(ErrCodeLockUnavailable, fmt.Sprintf("lock %q is held by another process", key), nil).
		WithDetail("lock_key", key)
}

// NewAlreadyExistsError reports a duplicate insert.
func NewAlreadyExistsError(what, id string) *ResyncError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s %q already exists", what, id), nil).
		WithDetail("id", id)
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(what, id string) *ResyncError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %q not found", what, id), nil).
		WithDetail("id", id)
}

// NewAuditError creates an audit-subsystem error. Always logged with
// full context by the caller.
func NewAuditError(message string, cause error) *ResyncError {
	return New(ErrCodeAudit, message, cause)
}

// NewIntegrationError creates an external capability error (LLM,
// embedder, TWS client). Retryable.
func NewIntegrationError(service string, cause error) *ResyncError {
	return New(ErrCodeIntegration, fmt.Sprintf("%s call failed", service), cause).
		WithDetail("service", service)
}

// NewServiceDegradedError reports that an external capability failed
// persistently and the system is operating degraded.
func NewServiceDegradedError(service string, cause error) *ResyncError {
	return New(ErrCodeServiceDegraded, fmt.Sprintf("%s is degraded", service), cause).
		WithDetail("service", service)
}

// NewTimeoutError reports a deadline exceeded on an external call.
func NewTimeoutError(op string, timeout time.Duration) *ResyncError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s exceeded deadline of %s", op, timeout), nil).
		WithDetail("operation", op).
		WithDetail("timeout", timeout.String())
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ResyncError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a ResyncError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsConnection reports whether err is a storage connection error.
func IsConnection(err error) bool {
	return hasCode(err, ErrCodeConnection)
}

// IsLockUnavailable reports whether err means the lock is held elsewhere.
func IsLockUnavailable(err error) bool {
	return hasCode(err, ErrCodeLockUnavailable)
}

// IsTimeout reports whether err is a deadline-exceeded error.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsAlreadyExists reports whether err is a duplicate-insert error.
func IsAlreadyExists(err error) bool {
	return hasCode(err, ErrCodeAlreadyExists)
}

// IsDataParsing reports whether err is a skippable parse failure.
func IsDataParsing(err error) bool {
	return hasCode(err, ErrCodeDataParsing)
}

// GetCode extracts the error code from a ResyncError anywhere in the
// chain. Returns empty string if none is present.
func GetCode(err error) string {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a ResyncError anywhere in the
// chain. Returns empty string if none is present.
func GetCategory(err error) Category {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return ""
}

func hasCode(err error, code string) bool {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func hasCategory(err error, cat Category) bool {
	var re *ResyncError
	if stderrors.As(err, &re) {
		return re.Category == cat
	}
	return false
}

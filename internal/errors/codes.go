// Package errors provides structured error handling for Resync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Validation errors
//   - 2XX: Storage errors (Redis, vector store)
//   - 3XX: Coordination errors (locks, audit queue)
//   - 4XX: Integration errors (LLM, embedder, TWS client)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryStorage indicates Redis and vector store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryCoordination indicates lock and audit queue errors.
	CategoryCoordination Category = "COORDINATION"
	// CategoryIntegration indicates LLM, embedder, and TWS client errors.
	CategoryIntegration Category = "INTEGRATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Validation errors (100-199)
	ErrCodeInvalidInput      = "ERR_101_INVALID_INPUT"
	ErrCodeEmptyKey          = "ERR_102_EMPTY_KEY"
	ErrCodeDimensionMismatch = "ERR_103_DIMENSION_MISMATCH"
	ErrCodeInvalidStatus     = "ERR_104_INVALID_STATUS"
	ErrCodeEmptyQuery        = "ERR_105_EMPTY_QUERY"
	ErrCodeConfigInvalid     = "ERR_106_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeConnection    = "ERR_201_CONNECTION"
	ErrCodeQuery         = "ERR_202_QUERY"
	ErrCodePoolExhausted = "ERR_203_POOL_EXHAUSTED"
	ErrCodeDataParsing   = "ERR_204_DATA_PARSING"

	// Coordination errors (300-399)
	ErrCodeLockUnavailable = "ERR_301_LOCK_UNAVAILABLE"
	ErrCodeAlreadyExists   = "ERR_302_ALREADY_EXISTS"
	ErrCodeNotFound        = "ERR_303_NOT_FOUND"
	ErrCodeAudit           = "ERR_304_AUDIT"

	// Integration errors (400-499)
	ErrCodeIntegration     = "ERR_401_INTEGRATION"
	ErrCodeServiceDegraded = "ERR_402_SERVICE_DEGRADED"
	ErrCodeTimeout         = "ERR_403_TIMEOUT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_CONNECTION")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryStorage
	case '3':
		return CategoryCoordination
	case '4':
		return CategoryIntegration
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeAlreadyExists:
		return SeverityInfo
	case ErrCodeLockUnavailable, ErrCodeDataParsing:
		// Lock contention and skippable parse failures are expected
		// operational events, not faults.
		return SeverityWarning
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Connection faults and integration failures are retried with backoff;
// everything else surfaces to the caller.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeConnection, ErrCodeIntegration:
		return true
	default:
		return false
	}
}

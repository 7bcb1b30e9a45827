// Package errors provides structured error handling for librarian.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (source files, index artifacts)
//   - 3XX: Embedding service errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and index-artifact I/O errors.
	CategoryIO Category = "IO"
	// CategoryEmbedding indicates embedding-service errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileTooLarge  = "ERR_202_FILE_TOO_LARGE"
	ErrCodeFileUnread    = "ERR_203_FILE_UNREADABLE"
	ErrCodeCorruptIndex  = "ERR_204_CORRUPT_INDEX"
	ErrCodeLockHeld      = "ERR_205_INDEX_LOCKED"
	ErrCodePersistFailed = "ERR_206_PERSIST_FAILED"

	// Embedding errors (300-399)
	ErrCodeEmbedTimeout     = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeEmbedRejected    = "ERR_303_EMBED_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_404_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeInvariantViolation = "ERR_502_INVARIANT_VIOLATION"
	ErrCodeSearchFailed       = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeInvariantViolation:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}

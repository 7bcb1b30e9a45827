package errors

import (
	"fmt"
)

// LibrarianError is the structured error type for librarian.
// It provides context for error handling, logging, and user presentation.
type LibrarianError struct {
	// Code is the unique error code (e.g., "ERR_204_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Embedding, etc.).
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
func (e *LibrarianError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LibrarianError) Unwrap() error {
	return e.Cause
}

// Is matches LibrarianErrors by code so errors.Is works across wrapping.
func (e *LibrarianError) Is(target error) bool {
	if t, ok := target.(*LibrarianError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LibrarianError) WithDetail(key, value string) *LibrarianError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *LibrarianError) WithSuggestion(suggestion string) *LibrarianError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LibrarianError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LibrarianError {
	return &LibrarianError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LibrarianError from an existing error.
// The error's message becomes the LibrarianError message.
func Wrap(code string, err error) *LibrarianError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CorruptIndexError creates an index-corruption error. These are the one
// class of failures that must be surfaced loudly rather than swallowed,
// since they imply prior indexing work may be lost.
func CorruptIndexError(message string, cause error) *LibrarianError {
	return New(ErrCodeCorruptIndex, message, cause)
}

// EmbeddingError creates an embedding-service error. Timeouts and
// unavailability are retryable; rejections are not.
func EmbeddingError(message string, cause error) *LibrarianError {
	return New(ErrCodeEmbedUnavailable, message, cause)
}

// InvariantError reports a broken internal invariant. This is a
// programming-level bug, never a recoverable runtime condition.
func InvariantError(message string) *LibrarianError {
	return New(ErrCodeInvariantViolation, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *LibrarianError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a LibrarianError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LibrarianError); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LibrarianError); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a LibrarianError.
// Returns empty string if not a LibrarianError.
func GetCode(err error) string {
	if le, ok := err.(*LibrarianError); ok {
		return le.Code
	}
	return ""
}

package errors

import (
	"fmt"
)

// CrossdockError is the structured error type for crossdock.
// It provides rich context for error handling, logging, and admin presentation.
type CrossdockError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_DEPARTMENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs
	// (department slug, artifact name, and similar).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the caller.
	Suggestion string
}

// Error implements the error interface.
func (e *CrossdockError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CrossdockError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CrossdockError.
func (e *CrossdockError) Is(target error) bool {
	if t, ok := target.(*CrossdockError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CrossdockError) WithDetail(key, value string) *CrossdockError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the caller.
// Returns the error for method chaining.
func (e *CrossdockError) WithSuggestion(suggestion string) *CrossdockError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CrossdockError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CrossdockError {
	return &CrossdockError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CrossdockError from an existing error.
// The error's message becomes the CrossdockError message.
func Wrap(code string, err error) *CrossdockError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ErrRegistryUninitialized is returned by the index registry before the first
// successful rebuild has published a snapshot. Use errors.Is to detect it.
var ErrRegistryUninitialized = New(ErrCodeRegistryUninitialized,
	"index registry has not completed its first rebuild", nil)

// InvalidDepartment creates the validation error for an unconfigured slug.
func InvalidDepartment(slug string) *CrossdockError {
	return New(ErrCodeInvalidDepartment,
		fmt.Sprintf("department %q is not configured", slug), nil).
		WithDetail("department", slug)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CrossdockError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a knowledge-tree or user-store I/O error.
func StorageError(code, message string, cause error) *CrossdockError {
	return New(code, message, cause)
}

// ProviderError creates an embedding-provider error.
// Provider errors are retryable.
func ProviderError(message string, cause error) *CrossdockError {
	return New(ErrCodeEmbedFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(code, message string) *CrossdockError {
	return New(code, message, nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CrossdockError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CrossdockError); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CrossdockError); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CrossdockError.
// Returns empty string if not a CrossdockError.
func GetCode(err error) string {
	if ce, ok := err.(*CrossdockError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CrossdockError.
// Returns empty string if not a CrossdockError.
func GetCategory(err error) Category {
	if ce, ok := err.(*CrossdockError); ok {
		return ce.Category
	}
	return ""
}

// Package errors provides structured error handling for crossdock.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (knowledge tree, user store)
//   - 3XX: Embedding provider errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates knowledge-tree and user-store I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryProvider indicates embedding-provider errors.
	CategoryProvider Category = "PROVIDER"
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
	ErrCodeConfigLoadFailed = "ERR_101_CONFIG_LOAD_FAILED"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeArtifactReadFailed  = "ERR_201_ARTIFACT_READ_FAILED"
	ErrCodeArtifactWriteFailed = "ERR_202_ARTIFACT_WRITE_FAILED"
	ErrCodeUserStoreFailed     = "ERR_203_USER_STORE_FAILED"

	// Embedding provider errors (300-399)
	ErrCodeEmbedFailed      = "ERR_301_EMBED_PROVIDER_FAILED"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidDepartment    = "ERR_401_INVALID_DEPARTMENT"
	ErrCodeDepartmentNotIndexed = "ERR_402_DEPARTMENT_NOT_INDEXED"
	ErrCodeEmptyQuery           = "ERR_403_EMPTY_QUERY"
	ErrCodeUnsafePath           = "ERR_404_UNSAFE_PATH"

	// Internal errors (500-599)
	ErrCodeInternal              = "ERR_500_INTERNAL"
	ErrCodeRegistryUninitialized = "ERR_501_REGISTRY_UNINITIALIZED"
	ErrCodePartialBuildFailure   = "ERR_502_PARTIAL_BUILD_FAILURE"
	ErrCodeDimensionMismatch     = "ERR_503_DIMENSION_MISMATCH"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_LOAD_FAILED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// An invalid department set makes the whole engine unusable.
	if code == ErrCodeConfigInvalid {
		return SeverityFatal
	}

	// Conditions the engine absorbs and degrades around.
	switch code {
	case ErrCodeDepartmentNotIndexed, ErrCodePartialBuildFailure:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedFailed, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}

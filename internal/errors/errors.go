// Package errors provides categorized errors mapped to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/resale-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryCatalog represents upstream catalog API errors
	CategoryCatalog ErrorCategory = "catalog"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// AsCategorized extracts a CategorizedError from an error chain, if present.
func AsCategorized(err error) (*CategorizedError, bool) {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// User Input Errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewRecordNotFoundError creates a not found error for a tracked record
func NewRecordNotFoundError(recordID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "RECORD_NOT_FOUND",
		Message:    fmt.Sprintf("record not found: %s", recordID),
		Details: map[string]interface{}{
			"recordId": recordID,
		},
	}
}

// NewRunInProgressError signals that another invocation holds the run lease
func NewRunInProgressError(kind string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "RUN_IN_PROGRESS",
		Message:    fmt.Sprintf("a %s run is already in progress", kind),
		Details: map[string]interface{}{
			"kind": kind,
		},
	}
}

// Catalog API errors

// NewCatalogError creates an upstream catalog API error
func NewCatalogError(statusCode int, body string) *CategorizedError {
	message := fmt.Sprintf("catalog API error (%d)", statusCode)
	if body != "" {
		message = fmt.Sprintf("catalog API error (%d): %s", statusCode, body)
	}
	return &CategorizedError{
		Category:   CategoryCatalog,
		StatusCode: http.StatusBadGateway,
		Code:       "CATALOG_ERROR",
		Message:    message,
		Details: map[string]interface{}{
			"upstreamStatus": statusCode,
			"body":           body,
		},
	}
}

// NewCatalogRateLimitError creates a catalog rate limit error with the
// server-suggested refill delay in milliseconds
func NewCatalogRateLimitError(refillInMs int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "CATALOG_RATE_LIMIT",
		Message:    "catalog API rate limit exceeded",
		Details: map[string]interface{}{
			"refillInMs": refillInMs,
		},
	}
}

// NewCatalogTimeoutError creates a catalog timeout error
func NewCatalogTimeoutError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCatalog,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "CATALOG_TIMEOUT",
		Message:    "catalog API request timed out",
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewSelectionError creates an error for a failed eligibility listing.
// This is the one per-run precondition failure that aborts a whole batch.
func NewSelectionError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "SELECTION_FAILED",
		Message:    "failed to list eligible records",
		Cause:      cause,
	}
}

// Package types provides common type definitions for the resale scanner system.
package types

// ResolutionStatus represents the processing state of a record's catalog resolution
type ResolutionStatus string

const (
	// StatusPending represents a record waiting for its first attempt
	StatusPending ResolutionStatus = "pending"
	// StatusSuccess represents a record whose lookup succeeded
	StatusSuccess ResolutionStatus = "success"
	// StatusNotFound represents a record the catalog has no entry for (terminal)
	StatusNotFound ResolutionStatus = "not_found"
	// StatusAPIError represents a record whose last attempt hit an upstream error
	StatusAPIError ResolutionStatus = "api_error"
	// StatusManualReview represents a record escalated after repeated failures
	StatusManualReview ResolutionStatus = "manual_review"
	// StatusTimeout represents a record whose last attempt exceeded its deadline
	StatusTimeout ResolutionStatus = "timeout"
)

// Valid reports whether s is one of the closed status values.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusNotFound, StatusAPIError, StatusManualReview, StatusTimeout:
		return true
	}
	return false
}

// Terminal reports whether the status excludes a record from automatic retry
// forever. Only not_found is terminal; manual_review becomes eligible again
// once its cooldown elapses.
func (s ResolutionStatus) Terminal() bool {
	return s == StatusNotFound
}

// FetchOutcome classifies one catalog API call
type FetchOutcome string

const (
	// OutcomeFound represents a successful fetch with at least one result
	OutcomeFound FetchOutcome = "found"
	// OutcomeNotFound represents a successful fetch with an empty result list
	OutcomeNotFound FetchOutcome = "not_found"
	// OutcomeRateLimited represents an HTTP 429 response
	OutcomeRateLimited FetchOutcome = "rate_limited"
	// OutcomeAPIError represents any other non-2xx response or a malformed body
	OutcomeAPIError FetchOutcome = "api_error"
)

// RunKind identifies which pipeline stage a run executes
type RunKind string

const (
	// RunResolve resolves source codes to marketplace ids
	RunResolve RunKind = "resolve"
	// RunEnrich fetches enrichment snapshots for resolved ids
	RunEnrich RunKind = "enrich"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

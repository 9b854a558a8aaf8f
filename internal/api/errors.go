package api

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/types"
)

// Error codes returned by the API
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error response body
type ErrorResponse struct {
	Error *types.ServiceError `json:"error"`
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("[API] failed to encode response: %v", err)
		}
	}
}

// respondError writes a standard error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: &types.ServiceError{
			Code:    code,
			Message: message,
		},
	})
}

// respondServiceError maps a service-layer error to an HTTP response.
// Categorized errors carry their own status code; everything else is a 500.
func respondServiceError(w http.ResponseWriter, err error) {
	if ce, ok := apperrors.AsCategorized(err); ok {
		respondJSON(w, ce.StatusCode, ErrorResponse{Error: ce.ToServiceError()})
		return
	}
	log.Printf("[API] unhandled error: %v", err)
	respondError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// parseJSONBody decodes a JSON request body into dst, rejecting unknown fields
func parseJSONBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

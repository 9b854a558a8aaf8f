package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizedErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    *CategorizedError
		status int
		code   string
	}{
		{"invalid parameter", NewInvalidParameterError("limit", "must be positive"), http.StatusBadRequest, "INVALID_PARAMETER"},
		{"record not found", NewRecordNotFoundError("p1"), http.StatusNotFound, "RECORD_NOT_FOUND"},
		{"run in progress", NewRunInProgressError("resolve"), http.StatusConflict, "RUN_IN_PROGRESS"},
		{"catalog error", NewCatalogError(500, "boom"), http.StatusBadGateway, "CATALOG_ERROR"},
		{"catalog rate limit", NewCatalogRateLimitError(23000), http.StatusTooManyRequests, "CATALOG_RATE_LIMIT"},
		{"catalog timeout", NewCatalogTimeoutError(), http.StatusGatewayTimeout, "CATALOG_TIMEOUT"},
		{"database", NewDatabaseError("snapshot insert", assert.AnError), http.StatusInternalServerError, "DATABASE_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.StatusCode)
			assert.Equal(t, tc.code, tc.err.Code)
		})
	}
}

func TestCatalogErrorKeepsUpstreamBody(t *testing.T) {
	err := NewCatalogError(502, "bad gateway")
	assert.Contains(t, err.Error(), "catalog API error (502): bad gateway")

	// An empty body still renders the upstream status.
	bare := NewCatalogError(503, "")
	assert.Contains(t, bare.Error(), "catalog API error (503)")
}

func TestAsCategorizedUnwrapsChain(t *testing.T) {
	inner := NewDatabaseError("product update", assert.AnError)
	wrapped := fmt.Errorf("processing record: %w", inner)

	ce, ok := AsCategorized(wrapped)
	require.True(t, ok)
	assert.Equal(t, "DATABASE_ERROR", ce.Code)
	assert.ErrorIs(t, wrapped, assert.AnError)

	_, ok = AsCategorized(fmt.Errorf("plain"))
	assert.False(t, ok)
}

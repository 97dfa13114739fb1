package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networth-tracker/internal/types"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection", NewConnectionError(types.ChainMainnet, assert.AnError), true},
		{"price", NewPriceUnavailableError(types.ChainMainnet, types.ZeroAddress, nil), true},
		{"persistence", NewPersistenceError("upsert balance", assert.AnError), true},
		{"queue", NewQueueError("enqueue", assert.AnError), true},
		{"chain config", NewChainNotConfiguredError(types.ChainID(999)), false},
		{"validation", NewValidationError("address", "not hex"), false},
		{"not found", NewNotFoundError("account", 7), false},
		{"plain error defaults to retryable persistence", assert.AnError, true},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}

func TestGetHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatusCode(NewValidationError("name", "required")))
	assert.Equal(t, http.StatusNotFound, GetHTTPStatusCode(NewNotFoundError("token", "0xabc")))
	assert.Equal(t, http.StatusNotFound, GetHTTPStatusCode(NewChainNotConfiguredError(types.ChainID(999))))
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatusCode(NewConnectionError(types.ChainMainnet, assert.AnError)))
	assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatusCode(NewQueueError("dequeue", assert.AnError)))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(assert.AnError))
}

func TestCategorize_UnwrapsWrappedDomainErrors(t *testing.T) {
	inner := NewPriceUnavailableError(types.ChainMainnet, "0xabc", nil)
	wrapped := fmt.Errorf("valuing token: %w", inner)

	categorized := Categorize(wrapped)
	require.NotNil(t, categorized)
	assert.Equal(t, CodePriceUnavailable, categorized.Code)
	assert.True(t, IsRetryable(wrapped))
}

func TestDomainError_Error(t *testing.T) {
	err := NewConnectionError(types.ChainMainnet, assert.AnError)
	assert.Contains(t, err.Error(), CodeConnectionError)
	assert.Contains(t, err.Error(), "caused by")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestToServiceError(t *testing.T) {
	err := NewValidationError("chainId", "must be positive")
	svc := err.ToServiceError()
	assert.Equal(t, CodeValidationError, svc.Code)
	assert.Equal(t, "chainId", svc.Details["field"])
}

// Package errors defines the domain error taxonomy and its mapping to
// HTTP status codes and retry behavior.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/networth-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryChainConfig represents a chain that is not configured.
	// Fatal to the specific task, never to the system: skip and log.
	CategoryChainConfig ErrorCategory = "chain_config"
	// CategoryConnection represents transient RPC connectivity failures
	CategoryConnection ErrorCategory = "connection"
	// CategoryPrice represents transient spot-price read failures
	CategoryPrice ErrorCategory = "price"
	// CategoryValidation represents malformed input, rejected at the API
	// boundary before a task is enqueued
	CategoryValidation ErrorCategory = "validation"
	// CategoryPersistence represents database errors, propagated to the caller
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryQueue represents task queue errors
	CategoryQueue ErrorCategory = "queue"
	// CategoryNotFound represents missing entities
	CategoryNotFound ErrorCategory = "not_found"
)

// Error codes surfaced in API responses and queue failure logs.
const (
	CodeChainNotConfigured = "CHAIN_NOT_CONFIGURED"
	CodeConnectionError    = "CONNECTION_ERROR"
	CodePriceUnavailable   = "PRICE_UNAVAILABLE"
	CodeValidationError    = "VALIDATION_ERROR"
	CodePersistenceError   = "PERSISTENCE_ERROR"
	CodeQueueError         = "QUEUE_ERROR"
	CodeNotFound           = "NOT_FOUND"
)

// DomainError carries a category, an HTTP status and the underlying cause.
type DomainError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses.
func (e *DomainError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewChainNotConfiguredError creates an error for an unknown chain id.
func NewChainNotConfiguredError(chainID types.ChainID) *DomainError {
	return &DomainError{
		Category:   CategoryChainConfig,
		StatusCode: http.StatusNotFound,
		Code:       CodeChainNotConfigured,
		Message:    fmt.Sprintf("chain %d is not configured", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewConnectionError creates an error for an unreachable RPC endpoint.
func NewConnectionError(chainID types.ChainID, cause error) *DomainError {
	return &DomainError{
		Category:   CategoryConnection,
		StatusCode: http.StatusBadGateway,
		Code:       CodeConnectionError,
		Message:    fmt.Sprintf("chain %d RPC endpoint unreachable", chainID),
		Cause:      cause,
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// NewPriceUnavailableError creates an error for a failed spot-price read.
func NewPriceUnavailableError(chainID types.ChainID, token string, cause error) *DomainError {
	return &DomainError{
		Category:   CategoryPrice,
		StatusCode: http.StatusBadGateway,
		Code:       CodePriceUnavailable,
		Message:    fmt.Sprintf("no spot price for token %s on chain %d", token, chainID),
		Cause:      cause,
		Details: map[string]interface{}{
			"chainId": chainID,
			"token":   token,
		},
	}
}

// NewValidationError creates an error for malformed input.
func NewValidationError(field, reason string) *DomainError {
	return &DomainError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidationError,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewPersistenceError creates an error for a failed database operation.
func NewPersistenceError(operation string, cause error) *DomainError {
	return &DomainError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       CodePersistenceError,
		Message:    fmt.Sprintf("persistence error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewQueueError creates an error for a failed queue operation.
func NewQueueError(operation string, cause error) *DomainError {
	return &DomainError{
		Category:   CategoryQueue,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeQueueError,
		Message:    fmt.Sprintf("task queue error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewNotFoundError creates an error for a missing entity.
func NewNotFoundError(resource string, id interface{}) *DomainError {
	return &DomainError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %v", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// Categorize wraps an arbitrary error into a DomainError.
func Categorize(err error) *DomainError {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return &DomainError{
			Category:   CategoryPersistence,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return &DomainError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       CodePersistenceError,
		Message:    "unexpected error",
		Cause:      err,
	}
}

// IsRetryable reports whether the queue should retry a task that failed
// with this error. Misconfiguration and validation failures never heal by
// retrying; connectivity and pricing failures usually do.
func IsRetryable(err error) bool {
	domainErr := Categorize(err)
	if domainErr == nil {
		return false
	}

	switch domainErr.Category {
	case CategoryConnection, CategoryPrice, CategoryPersistence, CategoryQueue:
		return true
	default:
		return false
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if domainErr := Categorize(err); domainErr != nil {
		return domainErr.StatusCode
	}
	return http.StatusInternalServerError
}

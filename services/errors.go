package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error. The value doubles as the
// machine-readable error code surfaced to API callers.
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeQuota         ErrorType = "quota_exceeded"
	ErrorTypeBudget        ErrorType = "budget_exceeded"
	ErrorTypeConfiguration ErrorType = "configuration_missing"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeAggregate     ErrorType = "upstream_routing_failure"
)

// DomainError represents a structured error with additional context.
// StatusCode carries the HTTP classification decided inside the core for
// aggregate outcomes; zero means "derive from Type".
type DomainError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Err        error
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatus sets the explicit HTTP classification for the error.
func (e *DomainError) WithStatus(statusCode int) *DomainError {
	e.StatusCode = statusCode
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrTenantNotFound   = NewDomainError(ErrorTypeNotFound, "tenant not found", nil)
	ErrProviderNotFound = NewDomainError(ErrorTypeNotFound, "provider not found", nil)
	ErrRecordNotFound   = NewDomainError(ErrorTypeNotFound, "request record not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrMissingModel = NewDomainError(ErrorTypeValidation, "model is required", nil)

	// Authorization Errors
	ErrUnauthorized  = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidAPIKey = NewDomainError(ErrorTypeUnauthorized, "invalid API key", nil)
	ErrInvalidToken  = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	// Quota / Budget Errors
	ErrQuotaExceeded         = NewDomainError(ErrorTypeQuota, "quota exceeded", nil)
	ErrMonthlyBudgetExceeded = NewDomainError(ErrorTypeBudget, "monthly budget exceeded", nil)

	// Configuration Errors
	ErrNoProvidersConfigured = NewDomainError(ErrorTypeConfiguration, "no providers configured for model", nil)
	ErrCatalogNotLoaded      = NewDomainError(ErrorTypeConfiguration, "provider catalog not loaded", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeExternal, "provider timeout", nil)

	// Aggregate Errors
	ErrAllProvidersFailed = NewDomainError(ErrorTypeAggregate, "all candidate providers failed", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsQuotaError checks if an error is a quota admission error
func IsQuotaError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeQuota
	}
	return false
}

// IsBudgetError checks if an error is a budget error
func IsBudgetError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeBudget
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConfiguration
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExternal
	}
	return false
}

// IsAggregateError checks if an error is an aggregate routing failure
func IsAggregateError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeAggregate
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetStatusCode returns the explicit HTTP classification of a domain error,
// or zero when the error carries none.
func GetStatusCode(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.StatusCode
	}
	return 0
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

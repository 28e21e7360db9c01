package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeTimestampFormat represents a malformed request timestamp
	ErrTypeTimestampFormat ErrorType = "timestamp_format"
	// ErrTypeSignature represents a signature verification failure
	ErrTypeSignature ErrorType = "signature"
	// ErrTypeStaleTimestamp represents a timestamp outside the freshness window
	ErrTypeStaleTimestamp ErrorType = "stale_timestamp"
	// ErrTypeTransientDelivery represents a retryable delivery failure
	ErrTypeTransientDelivery ErrorType = "transient_delivery"
	// ErrTypeFatalDelivery represents a non-retryable delivery failure
	ErrTypeFatalDelivery ErrorType = "fatal_delivery"
	// ErrTypeRetryExhausted represents a delivery that failed after all retries
	ErrTypeRetryExhausted ErrorType = "retry_exhausted"
	// ErrTypeStoreUnavailable represents a replay-store infrastructure failure
	ErrTypeStoreUnavailable ErrorType = "store_unavailable"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// TimestampFormatError creates a new malformed-timestamp error
func TimestampFormatError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTimestampFormat,
		Message: msg,
		Cause:   cause,
	}
}

// SignatureError creates a new signature verification error
func SignatureError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeSignature,
		Message: msg,
	}
}

// StaleTimestampError creates a new stale-timestamp error
func StaleTimestampError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeStaleTimestamp,
		Message: msg,
	}
}

// TransientDeliveryError creates a new retryable delivery error
func TransientDeliveryError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTransientDelivery,
		Message: msg,
		Cause:   cause,
	}
}

// FatalDeliveryError creates a new non-retryable delivery error
func FatalDeliveryError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeFatalDelivery,
		Message: msg,
	}
}

// StoreUnavailableError creates a new replay-store infrastructure error
func StoreUnavailableError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStoreUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type anywhere in its chain
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsAuthFailure reports whether the error is any authentication failure
// (bad signature, stale or malformed timestamp). Callers must present
// these uniformly so a rejection does not reveal which check failed.
func IsAuthFailure(err error) bool {
	return IsType(err, ErrTypeSignature) ||
		IsType(err, ErrTypeStaleTimestamp) ||
		IsType(err, ErrTypeTimestampFormat)
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}

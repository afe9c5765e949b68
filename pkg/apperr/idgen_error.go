package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"idgen_server/pkg/snowflake"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Generator errors
	CodeInvalidGeneratorConfig = "INVALID_GENERATOR_CONFIG"
	CodeClockRegression        = "CLOCK_REGRESSION"

	// External errors
	CodeExternalError = "EXTERNAL_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
	CodeRateLimited   = "RATE_LIMITED"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Generator errors
func InvalidGeneratorConfig(err error) *AppError {
	e := Wrap(err, CodeInvalidGeneratorConfig, "invalid generator configuration", http.StatusBadRequest)
	var cfgErr *snowflake.ConfigError
	if errors.As(err, &cfgErr) {
		e.Message = cfgErr.Reason
		e.WithDetail("field", cfgErr.Field).WithDetail("value", cfgErr.Value)
	}
	return e
}

func ClockRegression(err *snowflake.ClockRegressionError) *AppError {
	return Wrap(err, CodeClockRegression,
		fmt.Sprintf("clock moved backwards by %dms, retry later", err.DeltaMs),
		http.StatusServiceUnavailable).
		WithDetail("previous_timestamp", err.Previous).
		WithDetail("observed_timestamp", err.Observed).
		WithDetail("delta_ms", err.DeltaMs)
}

// FromSnowflake maps generator errors to application errors. Other errors
// become internal errors.
func FromSnowflake(err error) *AppError {
	if err == nil {
		return nil
	}
	if IsAppError(err) {
		return AsAppError(err)
	}
	var regErr *snowflake.ClockRegressionError
	if errors.As(err, &regErr) {
		return ClockRegression(regErr)
	}
	if errors.Is(err, snowflake.ErrInvalidConfig) {
		return InvalidGeneratorConfig(err)
	}
	return InternalWithError(err)
}

// External errors
func ExternalError(service string, err error) *AppError {
	return Wrap(err, CodeExternalError, fmt.Sprintf("external service error: %s", service), http.StatusBadGateway).
		WithDetail("service", service)
}

// Internal errors
func InternalWithError(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

func RateLimited(retryAfterSec int) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: "too many requests",
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"retry_after": retryAfterSec},
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}


package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is implemented by every error the service reports to callers.
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError is returned when a definition, tenant or table does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Code() string    { return "NOT_FOUND" }

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError rejects malformed input before any work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }
func (e *ValidationError) Code() string    { return "VALIDATION_ERROR" }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError marks a duplicate key. Importers recover from it by updating.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
	Cause    error
}

func (e *ConflictError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *ConflictError) Code() string    { return "CONFLICT" }
func (e *ConflictError) Unwrap() error   { return e.Cause }

func NewConflictError(resource, field, value string) *ConflictError {
	return &ConflictError{Resource: resource, Field: field, Value: value}
}

// SchemaError is a fault in the definitions themselves, e.g. a connect field
// pointing at an object that does not exist. It is reported to the builder.
type SchemaError struct {
	DefinitionID string
	Message      string
	Cause        error
}

func (e *SchemaError) Error() string {
	msg := e.Message
	if e.DefinitionID != "" {
		msg = fmt.Sprintf("definition '%s': %s", e.DefinitionID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("schema error: %s (caused by: %v)", msg, e.Cause)
	}
	return "schema error: " + msg
}

func (e *SchemaError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *SchemaError) Code() string    { return "SCHEMA_ERROR" }
func (e *SchemaError) Unwrap() error   { return e.Cause }

func NewSchemaError(definitionID, message string, cause error) *SchemaError {
	return &SchemaError{DefinitionID: definitionID, Message: message, Cause: cause}
}

// RetryExhaustedError wraps the last lock failure of an operation that was
// retried until its attempt budget ran out.
type RetryExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) HTTPStatus() int { return http.StatusServiceUnavailable }
func (e *RetryExhaustedError) Code() string    { return "RETRY_EXHAUSTED" }
func (e *RetryExhaustedError) Unwrap() error   { return e.Cause }

func NewRetryExhaustedError(attempts int, cause error) *RetryExhaustedError {
	return &RetryExhaustedError{Attempts: attempts, Cause: cause}
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *InternalError) Code() string    { return "INTERNAL_ERROR" }
func (e *InternalError) Unwrap() error   { return e.Cause }

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsSchema(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

func IsRetryExhausted(err error) bool {
	var target *RetryExhaustedError
	return errors.As(err, &target)
}

// GetHTTPStatus returns the HTTP status code for an error.
// Errors outside the AppError family map to 500.
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the stable code for an error, or UNKNOWN_ERROR.
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}

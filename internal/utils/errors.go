// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the feedback service.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a standardized, machine-readable error code for API responses
type ErrorCode string

const (
	// Database error codes

	// ErrorCodeDatabaseConnection indicates a database connection error
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a database query error
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeDatabaseTransaction indicates a database transaction error
	ErrorCodeDatabaseTransaction ErrorCode = "DATABASE_TRANSACTION_ERROR"
	// ErrorCodeRecordNotFound indicates that a requested record was not found
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	// ErrorCodeRecordExists indicates that a record already exists (duplicate key)
	ErrorCodeRecordExists ErrorCode = "RECORD_ALREADY_EXISTS"
	// ErrorCodeForeignKeyViolation indicates a foreign key constraint violation
	ErrorCodeForeignKeyViolation ErrorCode = "FOREIGN_KEY_VIOLATION"

	// Validation error codes

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeValidationFailed indicates that one or more fields failed validation
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeBatchSizeExceeded indicates a batch request carried too many items
	ErrorCodeBatchSizeExceeded ErrorCode = "BATCH_SIZE_EXCEEDED"

	// Authentication error codes

	// ErrorCodeUnauthorized indicates that the caller is not authenticated
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden indicates that the caller may not perform the operation
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeInvalidCredentials indicates that the provided credentials are invalid
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	// ErrorCodeTokenExpired indicates that the bearer token has expired
	ErrorCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	// ErrorCodeAccountDisabled indicates that the user account is locked or inactive
	ErrorCodeAccountDisabled ErrorCode = "ACCOUNT_DISABLED"
	// ErrorCodeUserExists indicates that the username or email is already registered
	ErrorCodeUserExists ErrorCode = "USER_ALREADY_EXISTS"

	// External API error codes

	// ErrorCodeMissingAPIKey indicates the request carried no API key
	ErrorCodeMissingAPIKey ErrorCode = "MISSING_API_KEY"
	// ErrorCodeInvalidAPIKey indicates the API key is unknown, disabled or expired
	ErrorCodeInvalidAPIKey ErrorCode = "INVALID_API_KEY"
	// ErrorCodeSystemDisabled indicates the key's external system is disabled
	ErrorCodeSystemDisabled ErrorCode = "SYSTEM_DISABLED"
	// ErrorCodeInsufficientPermissions indicates the external system lacks the permission
	ErrorCodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"

	// Domain error codes

	// ErrorCodeFeedbackNotFound indicates that no feedback matched the tracking code or id
	ErrorCodeFeedbackNotFound ErrorCode = "FEEDBACK_NOT_FOUND"
	// ErrorCodeCategoryHasChildren indicates a category delete blocked by child categories
	ErrorCodeCategoryHasChildren ErrorCode = "CATEGORY_HAS_CHILDREN"
	// ErrorCodeCategoryInUse indicates a category delete blocked by linked feedback
	ErrorCodeCategoryInUse ErrorCode = "CATEGORY_IN_USE"
	// ErrorCodeRouteNotFound indicates that no route matched the request
	ErrorCodeRouteNotFound ErrorCode = "ROUTE_NOT_FOUND"

	// Service error codes

	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeRateLimit indicates that the rate limit has been exceeded
	ErrorCodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeConflict indicates that an operation conflicts with the current state
	ErrorCodeConflict ErrorCode = "CONFLICT"
)

// HTTPStatus maps the error code to the HTTP status code returned to clients
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrorCodeInvalidInput, ErrorCodeValidationFailed, ErrorCodeBatchSizeExceeded,
		ErrorCodeCategoryHasChildren, ErrorCodeCategoryInUse, ErrorCodeUserExists:
		return http.StatusBadRequest

	case ErrorCodeUnauthorized, ErrorCodeInvalidCredentials, ErrorCodeTokenExpired,
		ErrorCodeMissingAPIKey, ErrorCodeInvalidAPIKey:
		return http.StatusUnauthorized

	case ErrorCodeForbidden, ErrorCodeAccountDisabled, ErrorCodeSystemDisabled,
		ErrorCodeInsufficientPermissions:
		return http.StatusForbidden

	case ErrorCodeRecordNotFound, ErrorCodeFeedbackNotFound, ErrorCodeRouteNotFound:
		return http.StatusNotFound

	case ErrorCodeRecordExists, ErrorCodeConflict:
		return http.StatusConflict

	case ErrorCodeRateLimit:
		return http.StatusTooManyRequests

	case ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection:
		return http.StatusServiceUnavailable

	case ErrorCodeTimeout:
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// FieldError describes a single failing input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
	Fields   []FieldError
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

// Error types for consistent error handling with associated codes and severity
var (
	// Database errors
	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrDatabaseTransaction = &AppError{
		Code:     ErrorCodeDatabaseTransaction,
		Severity: SeverityError,
		Message:  "Database transaction failed",
	}

	ErrRecordNotFound = &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  "Record not found",
	}

	ErrRecordExists = &AppError{
		Code:     ErrorCodeRecordExists,
		Severity: SeverityInfo,
		Message:  "Record already exists",
	}

	ErrForeignKeyViolation = &AppError{
		Code:     ErrorCodeForeignKeyViolation,
		Severity: SeverityError,
		Message:  "Foreign key constraint violation",
	}

	// Validation errors
	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}

	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	ErrBatchSizeExceeded = &AppError{
		Code:     ErrorCodeBatchSizeExceeded,
		Severity: SeverityWarn,
		Message:  "Batch size exceeded",
	}

	// Authentication errors
	ErrUnauthorized = &AppError{
		Code:     ErrorCodeUnauthorized,
		Severity: SeverityWarn,
		Message:  "Authentication required",
	}

	ErrForbidden = &AppError{
		Code:     ErrorCodeForbidden,
		Severity: SeverityWarn,
		Message:  "Forbidden",
	}

	ErrInvalidCredentials = &AppError{
		Code:     ErrorCodeInvalidCredentials,
		Severity: SeverityWarn,
		Message:  "Invalid username or password",
	}

	ErrTokenExpired = &AppError{
		Code:     ErrorCodeTokenExpired,
		Severity: SeverityInfo,
		Message:  "Token expired",
	}

	ErrAccountDisabled = &AppError{
		Code:     ErrorCodeAccountDisabled,
		Severity: SeverityWarn,
		Message:  "Account is locked or inactive",
	}

	ErrUserExists = &AppError{
		Code:     ErrorCodeUserExists,
		Severity: SeverityInfo,
		Message:  "Username or email already exists",
	}

	// External API errors
	ErrMissingAPIKey = &AppError{
		Code:     ErrorCodeMissingAPIKey,
		Severity: SeverityWarn,
		Message:  "API key is required",
	}

	ErrInvalidAPIKey = &AppError{
		Code:     ErrorCodeInvalidAPIKey,
		Severity: SeverityWarn,
		Message:  "Invalid API key",
	}

	ErrSystemDisabled = &AppError{
		Code:     ErrorCodeSystemDisabled,
		Severity: SeverityWarn,
		Message:  "External system is disabled",
	}

	ErrInsufficientPermissions = &AppError{
		Code:     ErrorCodeInsufficientPermissions,
		Severity: SeverityWarn,
		Message:  "Insufficient permissions",
	}

	// Domain errors
	ErrFeedbackNotFound = &AppError{
		Code:     ErrorCodeFeedbackNotFound,
		Severity: SeverityInfo,
		Message:  "Feedback not found",
	}

	ErrCategoryHasChildren = &AppError{
		Code:     ErrorCodeCategoryHasChildren,
		Severity: SeverityWarn,
		Message:  "Category has child categories",
	}

	ErrCategoryInUse = &AppError{
		Code:     ErrorCodeCategoryInUse,
		Severity: SeverityWarn,
		Message:  "Category is referenced by feedback",
	}

	// Service errors
	ErrServiceUnavailable = &AppError{
		Code:     ErrorCodeServiceUnavailable,
		Severity: SeverityError,
		Message:  "Service unavailable",
	}

	ErrTimeout = &AppError{
		Code:     ErrorCodeTimeout,
		Severity: SeverityWarn,
		Message:  "Request timeout",
	}

	ErrRateLimit = &AppError{
		Code:     ErrorCodeRateLimit,
		Severity: SeverityWarn,
		Message:  "Rate limit exceeded",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}

	ErrConflict = &AppError{
		Code:     ErrorCodeConflict,
		Severity: SeverityWarn,
		Message:  "Operation conflicts with current state",
	}
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// NewValidationError builds a VALIDATION_ERROR carrying every failing field
func NewValidationError(fields ...FieldError) *AppError {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
		Details:  strings.Join(msgs, "; "),
		Fields:   fields,
	}
}

// WithMessage returns a copy of a sentinel error with a more specific message
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    err,
			Fields:   appErr.Fields,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	// %w is honoured through fmt.Errorf so the chain stays inspectable
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)

		var appErr *AppError
		if errors.As(err, &appErr) {
			return &AppError{
				Code:     appErr.Code,
				Severity: appErr.Severity,
				Message:  wrappedErr.Error(),
				Details:  appErr.Error(),
				Cause:    wrappedErr,
			}
		}

		return &AppError{
			Code:     ErrorCodeInternalError,
			Severity: SeverityError,
			Message:  wrappedErr.Error(),
			Details:  err.Error(),
			Cause:    wrappedErr,
		}
	}

	return WrapError(err, fmt.Sprintf(format, args...))
}

// ErrorWithContextf creates a new internal error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error (or anything it wraps) matches a specific AppError type
func IsError(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// AsError attempts to convert an error to an AppError
func AsError(err error, target **AppError) bool {
	return errors.As(err, target)
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// GetErrorSeverity returns the severity level from an error if it's an AppError, otherwise returns error
func GetErrorSeverity(err error) SeverityLevel {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityError
}

// IsRetryable determines if an error should be retried based on its type and severity
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection, ErrorCodeRateLimit:
			return appErr.Severity != SeverityFatal
		}
	}
	return false
}

// ToJSON converts an AppError to the failure envelope returned by the API.
// Details are only included when includeDetails is set (debug builds).
func (e *AppError) ToJSON(includeDetails bool) map[string]interface{} {
	result := map[string]interface{}{
		"success": false,
		"code":    string(e.Code),
		"message": e.Message,
	}

	if len(e.Fields) > 0 {
		result["errors"] = e.Fields
	}

	if includeDetails {
		if e.Details != "" {
			result["details"] = e.Details
		}
		if e.Cause != nil {
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey is used to store the acting user ID in context
	UserIDKey ContextKey = "userID"
	// RequestIDKey is used to store the request identifier in context
	RequestIDKey ContextKey = "requestID"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(UserIDKey).(int); ok {
		return userID
	}
	return 0
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestIDFromContext extracts the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a new context carrying the request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

package contextutils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidInput,
				Severity: SeverityError,
				Message:  "Invalid input",
				Details:  "Field 'email' is required",
			},
			expected: "INVALID_INPUT: Invalid input - Field 'email' is required",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeFeedbackNotFound,
				Severity: SeverityInfo,
				Message:  "Feedback not found",
			},
			expected: "FEEDBACK_NOT_FOUND: Feedback not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := &AppError{Code: ErrorCodeInternalError, Cause: cause}
	assert.Equal(t, cause, appErr.Unwrap())

	assert.True(t, errors.Is(&AppError{Code: ErrorCodeInvalidAPIKey}, ErrInvalidAPIKey))
	assert.False(t, errors.Is(&AppError{Code: ErrorCodeInvalidAPIKey}, ErrMissingAPIKey))
	assert.False(t, appErr.Is(errors.New("plain")))
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrorCodeValidationFailed, http.StatusBadRequest},
		{ErrorCodeBatchSizeExceeded, http.StatusBadRequest},
		{ErrorCodeCategoryHasChildren, http.StatusBadRequest},
		{ErrorCodeCategoryInUse, http.StatusBadRequest},
		{ErrorCodeUserExists, http.StatusBadRequest},
		{ErrorCodeMissingAPIKey, http.StatusUnauthorized},
		{ErrorCodeInvalidAPIKey, http.StatusUnauthorized},
		{ErrorCodeTokenExpired, http.StatusUnauthorized},
		{ErrorCodeSystemDisabled, http.StatusForbidden},
		{ErrorCodeInsufficientPermissions, http.StatusForbidden},
		{ErrorCodeAccountDisabled, http.StatusForbidden},
		{ErrorCodeFeedbackNotFound, http.StatusNotFound},
		{ErrorCodeRouteNotFound, http.StatusNotFound},
		{ErrorCodeRecordExists, http.StatusConflict},
		{ErrorCodeRateLimit, http.StatusTooManyRequests},
		{ErrorCodeDatabaseQuery, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
		})
	}
}

func TestNewAppErrorWithCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewAppErrorWithCause(ErrorCodeDatabaseQuery, SeverityError, "Query failed", "select", cause)
	assert.Equal(t, ErrorCodeDatabaseQuery, err.Code)
	assert.ErrorIs(t, err, cause)
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(
		FieldError{Field: "title", Message: "is required"},
		FieldError{Field: "contact", Message: "must be at most 100 characters"},
	)

	assert.Equal(t, ErrorCodeValidationFailed, err.Code)
	assert.Equal(t, "Validation failed", err.Message)
	assert.Equal(t, "title: is required; contact: must be at most 100 characters", err.Details)
	assert.Len(t, err.Fields, 2)
}

func TestWithMessage_DoesNotMutateSentinel(t *testing.T) {
	custom := ErrFeedbackNotFound.WithMessage("Feedback %s not found", "ABC123")
	assert.Equal(t, "Feedback ABC123 not found", custom.Message)
	assert.Equal(t, "Feedback not found", ErrFeedbackNotFound.Message)
	assert.True(t, IsError(custom, ErrFeedbackNotFound))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	wrapped := WrapError(ErrCategoryInUse, "failed to delete category")
	var appErr *AppError
	require.True(t, AsError(wrapped, &appErr))
	assert.Equal(t, ErrorCodeCategoryInUse, appErr.Code)
	assert.Equal(t, "failed to delete category", appErr.Message)

	plain := WrapError(errors.New("boom"), "failed to query")
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(plain))
	assert.Equal(t, SeverityError, GetErrorSeverity(plain))
}

func TestWrapError_PreservesFields(t *testing.T) {
	v := NewValidationError(FieldError{Field: "name", Message: "is required"})
	wrapped := WrapError(v, "failed to create category")

	var appErr *AppError
	require.True(t, AsError(wrapped, &appErr))
	assert.Equal(t, v.Fields, appErr.Fields)
}

func TestWrapErrorf(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := WrapErrorf(base, "failed to load feedback %d: %w", 7, base)
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "failed to load feedback 7")

	formatted := WrapErrorf(ErrRateLimit, "system %s over limit", "crm")
	assert.Equal(t, ErrorCodeRateLimit, GetErrorCode(formatted))
}

func TestErrorWithContextf(t *testing.T) {
	err := ErrorWithContextf("unexpected status %q", "BOGUS")
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(err))
	assert.Contains(t, err.Error(), `unexpected status "BOGUS"`)
}

func TestIsError_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrSystemDisabled)
	assert.True(t, IsError(err, ErrSystemDisabled))
	assert.False(t, IsError(err, ErrInvalidAPIKey))
	assert.False(t, IsError(errors.New("plain"), ErrSystemDisabled))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrDatabaseConnection))
	assert.False(t, IsRetryable(ErrInvalidInput))
	assert.False(t, IsRetryable(&AppError{Code: ErrorCodeTimeout, Severity: SeverityFatal}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestToJSON(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeDatabaseQuery, SeverityError, "Query failed", "select failed", errors.New("pq: boom"))

	body := err.ToJSON(false)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "DATABASE_QUERY_ERROR", body["code"])
	assert.Equal(t, "Query failed", body["message"])
	assert.NotContains(t, body, "details")
	assert.NotContains(t, body, "cause")
	assert.NotContains(t, body, "errors")

	debug := err.ToJSON(true)
	assert.Equal(t, "select failed", debug["details"])
	assert.Equal(t, "pq: boom", debug["cause"])
}

func TestToJSON_IncludesFieldErrors(t *testing.T) {
	body := NewValidationError(FieldError{Field: "title", Message: "is required"}).ToJSON(false)
	fields, ok := body["errors"].([]FieldError)
	require.True(t, ok)
	assert.Equal(t, "title", fields[0].Field)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, GetUserIDFromContext(ctx))
	assert.Equal(t, "", GetRequestIDFromContext(ctx))

	ctx = WithUserID(ctx, 42)
	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, 42, GetUserIDFromContext(ctx))
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestErrorRecoveryMiddleware_PanicRecovery(t *testing.T) {
	router := newTestRouter()
	router.Use(ErrorRecoveryMiddleware(testLogger()))
	router.GET("/panic", func(_ *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotContains(t, w.Body.String(), "test panic", "panic values stay out of release responses")
}

func TestErrorRecoveryMiddleware_NormalRequest(t *testing.T) {
	router := newTestRouter()
	router.Use(ErrorRecoveryMiddleware(testLogger()))
	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/normal", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		message  string
		hasField bool
	}{
		{"not found", contextutils.ErrFeedbackNotFound, http.StatusNotFound, "FEEDBACK_NOT_FOUND", "Feedback not found", false},
		{"wrapped conflict", contextutils.WrapError(contextutils.ErrRecordExists, "Category exists"), http.StatusConflict, "RECORD_ALREADY_EXISTS", "Category exists", false},
		{"validation", contextutils.NewValidationError(contextutils.FieldError{Field: "content", Message: "is required"}), http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", true},
		{"plain error", errors.New("dial tcp: refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", false},
		{"rate limit", contextutils.ErrRateLimit, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter()
			router.GET("/", func(c *gin.Context) {
				HandleAppError(c, tt.err)
				assert.Equal(t, tt.code, c.GetString(ErrorCodeKey))
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, w.Code)
			body := decodeEnvelope(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.message, body["message"])
			_, hasErrors := body["errors"]
			assert.Equal(t, tt.hasField, hasErrors)
			assert.NotContains(t, body, "details")
		})
	}
}

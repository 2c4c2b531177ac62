package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidationRouter(t *testing.T, schema string, maxBytes int64) (*gin.Engine, *string) {
	t.Helper()
	var seen string
	router := newTestRouter()
	router.POST("/", RequestValidationMiddleware(loadSchemas(t), schema, maxBytes, testLogger()), func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		seen = string(body)
		c.Status(http.StatusNoContent)
	})
	return router, &seen
}

func TestRequestValidationMiddleware_RestoresBody(t *testing.T) {
	router, seen := newValidationRouter(t, "LoginRequest", 1024)
	body := `{"username":"alice","password":"pw"}`

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, body, *seen)
}

func TestRequestValidationMiddleware_ListsAllFields(t *testing.T) {
	router, seen := newValidationRouter(t, "UserRegistration", 1024)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"bad"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, *seen)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "Validation failed", body["message"])

	errs, ok := body["errors"].([]interface{})
	require.True(t, ok)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.(map[string]interface{})["field"].(string)] = true
	}
	assert.True(t, fields["username"])
	assert.True(t, fields["password"])
	assert.True(t, fields["email"])
}

func TestRequestValidationMiddleware_Oversize(t *testing.T) {
	router, _ := newValidationRouter(t, "FeedbackCreate", 16)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"content":"`+strings.Repeat("x", 64)+`"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, w)["code"])
}

func TestRequestValidationMiddleware_UnknownSchemaPanics(t *testing.T) {
	assert.Panics(t, func() {
		RequestValidationMiddleware(loadSchemas(t), "Missing", 1024, testLogger())
	})
}

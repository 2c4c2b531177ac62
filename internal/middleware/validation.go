package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RequestValidationMiddleware validates the JSON body against schemaName
// before anything else runs. Every failing field is reported. On success the
// body is restored for the handler. Bodies over maxBytes are rejected.
func RequestValidationMiddleware(loader *SchemaLoader, schemaName string, maxBytes int64, logger *observability.Logger) gin.HandlerFunc {
	if !loader.Has(schemaName) {
		panic(fmt.Sprintf("request schema %s is not loaded", schemaName))
	}

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation",
			attribute.String("schema.name", schemaName))
		defer span.End()

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					AbortWithAppError(c, contextutils.ErrInvalidInput.WithMessage(
						"Request body exceeds %d bytes", maxBytes))
					return
				}
				AbortWithAppError(c, contextutils.ErrInvalidInput.WithMessage("Failed to read request body"))
				return
			}
		}

		fields, err := loader.Validate(body, schemaName)
		if err != nil {
			logger.Error(ctx, "Request validation could not run", err, map[string]interface{}{
				"schema_name": schemaName,
				"path":        c.Request.URL.Path,
			})
			AbortWithAppError(c, err)
			return
		}
		if len(fields) > 0 {
			span.SetAttributes(attribute.Int("validation.failures", len(fields)))
			logger.Debug(ctx, "Request validation failed", map[string]interface{}{
				"schema_name": schemaName,
				"path":        c.Request.URL.Path,
				"failures":    len(fields),
			})
			AbortWithAppError(c, contextutils.NewValidationError(fields...))
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

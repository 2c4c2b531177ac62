package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"

	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorCodeKey holds the code of the failure envelope written for a request,
// read back by the call log.
const ErrorCodeKey = "error_code"

// ErrorRecoveryMiddleware turns a panic into a 500 INTERNAL_ERROR envelope
func ErrorRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())

				panicErr, ok := rec.(error)
				if !ok {
					panicErr = fmt.Errorf("panic: %v", rec)
				}
				logger.Error(c.Request.Context(), "Panic recovered", panicErr, map[string]interface{}{
					"http.method": c.Request.Method,
					"http.path":   c.Request.URL.Path,
					"stack":       stack,
				})

				appErr := contextutils.NewAppErrorWithCause(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
					panicErr,
				)
				if gin.IsDebugging() {
					appErr.Details = fmt.Sprintf("%s\nStack trace: %s", appErr.Details, stack)
				}

				AbortWithAppError(c, appErr)
			}
		}()

		c.Next()
	}
}

// HandleAppError writes the failure envelope for err. Errors that are not an
// AppError are reported as a generic INTERNAL_ERROR; the cause only reaches
// the client in debug mode.
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if !errors.As(err, &appErr) {
		appErr = contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInternalError,
			contextutils.SeverityError,
			"Internal server error",
			"",
			err,
		)
	}

	c.Set(ErrorCodeKey, string(appErr.Code))
	_ = c.Error(appErr)
	c.JSON(appErr.Code.HTTPStatus(), appErr.ToJSON(gin.IsDebugging()))
}

// AbortWithAppError writes the failure envelope and stops the handler chain
func AbortWithAppError(c *gin.Context, err error) {
	HandleAppError(c, err)
	c.Abort()
}

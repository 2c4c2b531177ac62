package middleware

import (
	"context"
	"database/sql"
	"time"

	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader echoes the id assigned to every request
const RequestIDHeader = "X-Request-ID"

// RequestIDKey holds the request id in the gin context
const RequestIDKey = "request_id"

// CallRecorder persists external API call logs
type CallRecorder interface {
	Record(ctx context.Context, entry *models.APICallLog) error
}

// RequestID assigns a fresh uuid to the request, stores it in the context and
// echoes it in X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		assignRequestID(c)
		c.Next()
	}
}

func assignRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(RequestIDKey, id)
	c.Header(RequestIDHeader, id)
	c.Request = c.Request.WithContext(contextutils.WithRequestID(c.Request.Context(), id))
	return id
}

func nullInt(c *gin.Context, key string) sql.NullInt64 {
	if v, ok := c.Get(key); ok {
		if id, ok := v.(int); ok && id > 0 {
			return sql.NullInt64{Int64: int64(id), Valid: true}
		}
	}
	return sql.NullInt64{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// APICallLogMiddleware writes exactly one api_call_logs row per request
// once the rest of the chain has finished, whatever the outcome. A failed
// write is logged and never alters the response.
func APICallLogMiddleware(recorder CallRecorder, metrics *observability.Metrics, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := assignRequestID(c)

		c.Next()

		status := c.Writer.Status()
		errorCode := c.GetString(ErrorCodeKey)
		entry := &models.APICallLog{
			ExternalSystemID: nullInt(c, SystemIDKey),
			APIKeyID:         nullInt(c, APIKeyIDKey),
			APIPath:          c.Request.URL.Path,
			Method:           c.Request.Method,
			StatusCode:       status,
			RequestID:        requestID,
			ResponseTimeMs:   int(time.Since(start).Milliseconds()),
			IP:               nullString(c.ClientIP()),
			UserAgent:        nullString(c.Request.UserAgent()),
			ErrorCode:        nullString(errorCode),
		}

		ctx := context.WithoutCancel(c.Request.Context())
		metrics.RecordExternalCall(ctx, status, errorCode)
		if err := recorder.Record(ctx, entry); err != nil {
			logger.Error(ctx, "Failed to record API call", err, map[string]interface{}{
				"request_id": requestID,
				"path":       entry.APIPath,
				"status":     status,
			})
		}
	}
}

package middleware

import (
	"context"
	"strconv"

	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware enforces the external system's per-minute budget. It
// must run after RequireAPIKey; requests without an external principal pass.
func RateLimitMiddleware(limiter services.RateLimiterInterface, metrics *observability.Metrics, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if !p.IsExternal() || p.RateLimit <= 0 {
			c.Next()
			return
		}

		decision, err := limiter.Allow(c.Request.Context(), p.SystemID, p.RateLimit)
		if err != nil {
			logger.Warn(c.Request.Context(), "Rate limit check failed, allowing request", map[string]interface{}{
				"system_id": p.SystemID,
				"error":     err.Error(),
			})
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			metrics.RecordRateLimited(context.WithoutCancel(c.Request.Context()), p.SystemName)
			logger.Warn(c.Request.Context(), "External system rate limited", map[string]interface{}{
				"system_id":  p.SystemID,
				"rate_limit": p.RateLimit,
			})
			AbortWithAppError(c, contextutils.ErrRateLimit.WithMessage(
				"Rate limit of %d requests per minute exceeded", p.RateLimit))
			return
		}
		c.Next()
	}
}

package middleware

import (
	"context"
	"strings"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// Context keys the call log reads to attribute a request
const (
	SystemIDKey = "external_system_id"
	APIKeyIDKey = "api_key_id"
)

// APIKeyHeader carries the partner key; Authorization: Bearer is accepted too
const APIKeyHeader = "X-API-Key"

// APIKeyResolver looks up partner keys
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, rawKey string) (*models.ResolvedAPIKey, error)
	TouchLastUsed(ctx context.Context, keyID int) error
}

func apiKeyFromRequest(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
		return key
	}
	return bearerToken(c)
}

// RequireAPIKey authenticates an external system. Failures are reported in
// order: MISSING_API_KEY, INVALID_API_KEY, SYSTEM_DISABLED. The route's
// permission is checked afterwards by RequireCapability.
func RequireAPIKey(resolver APIKeyResolver, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := apiKeyFromRequest(c)
		if raw == "" {
			AbortWithAppError(c, contextutils.ErrMissingAPIKey)
			return
		}

		resolved, err := resolver.ResolveAPIKey(c.Request.Context(), raw)
		if resolved != nil {
			c.Set(SystemIDKey, resolved.System.ID)
			c.Set(APIKeyIDKey, resolved.Key.ID)
		}
		if err != nil {
			logger.Warn(c.Request.Context(), "API key rejected", map[string]interface{}{
				"api_key":    contextutils.MaskAPIKey(raw),
				"error_code": string(contextutils.GetErrorCode(err)),
				"ip":         c.ClientIP(),
			})
			AbortWithAppError(c, err)
			return
		}

		SetPrincipal(c, &models.Principal{
			Kind:        models.PrincipalExternal,
			SystemID:    resolved.System.ID,
			SystemName:  resolved.System.Name,
			APIKeyID:    resolved.Key.ID,
			Permissions: resolved.System.Permissions,
			RateLimit:   resolved.System.RateLimit,
		})

		keyID := resolved.Key.ID
		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			ctx, cancel := context.WithTimeout(ctx, config.BackgroundTaskTimeout)
			defer cancel()
			if err := resolver.TouchLastUsed(ctx, keyID); err != nil {
				logger.Warn(ctx, "Failed to update API key last_used_at", map[string]interface{}{
					"api_key_id": keyID,
					"error":      err.Error(),
				})
			}
		}()

		c.Next()
	}
}

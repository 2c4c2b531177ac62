// Package middleware provides authentication, authorization and request
// plumbing middleware for the Gin web framework.
package middleware

import (
	"strings"

	"feedbackhub/internal/models"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	// PrincipalKey holds the *models.Principal of an authenticated request
	PrincipalKey = "principal"
	// UserIDKey holds the session user id
	UserIDKey = "user_id"
	// UsernameKey holds the session username
	UsernameKey = "username"
)

// AccessTokenParser verifies session access tokens
type AccessTokenParser interface {
	ParseAccessToken(raw string) (*services.TokenClaims, error)
}

// bearerToken returns the credential of an "Authorization: Bearer <x>" header
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// SetPrincipal attaches p to the request
func SetPrincipal(c *gin.Context, p *models.Principal) {
	c.Set(PrincipalKey, p)
	if p.IsUser() {
		c.Set(UserIDKey, p.UserID)
		c.Set(UsernameKey, p.Username)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), p.UserID))
	}
}

// GetPrincipal returns the authenticated caller, or nil
func GetPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

func principalFromClaims(claims *services.TokenClaims) *models.Principal {
	return &models.Principal{
		Kind:     models.PrincipalUser,
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
	}
}

// RequireAuth rejects requests without a valid access token with 401
func RequireAuth(tokens AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithAppError(c, contextutils.ErrUnauthorized.WithMessage("Authentication required"))
			return
		}
		claims, err := tokens.ParseAccessToken(raw)
		if err != nil {
			AbortWithAppError(c, err)
			return
		}
		SetPrincipal(c, principalFromClaims(claims))
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid access token is present
// and otherwise continues anonymously.
func OptionalAuth(tokens AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if claims, err := tokens.ParseAccessToken(raw); err == nil {
				SetPrincipal(c, principalFromClaims(claims))
			}
		}
		c.Next()
	}
}

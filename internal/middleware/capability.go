package middleware

import (
	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

var userCapabilities = map[models.Action]bool{
	models.ActionFeedbackCreate:  true,
	models.ActionFeedbackRead:    true,
	models.ActionFeedbackComment: true,
	models.ActionProfileManage:   true,
	models.ActionCategoryRead:    true,
}

var adminCapabilities = map[models.Action]bool{
	models.ActionFeedbackManage: true,
	models.ActionCategoryManage: true,
	models.ActionUserManage:     true,
	models.ActionSystemManage:   true,
}

// Can reports whether p may perform action. External systems hold exactly
// their granted permissions; admins hold every user capability plus the
// management ones. A nil principal can do nothing.
func Can(p *models.Principal, action models.Action) bool {
	switch {
	case p == nil:
		return false
	case p.IsExternal():
		for _, perm := range p.Permissions {
			if models.Action(perm) == action {
				return true
			}
		}
		return false
	case p.IsUser():
		if userCapabilities[action] {
			return true
		}
		return p.IsAdmin() && adminCapabilities[action]
	}
	return false
}

// RequireCapability aborts unless the request principal may perform action.
// Anonymous callers get 401, external systems INSUFFICIENT_PERMISSIONS and
// users FORBIDDEN.
func RequireCapability(action models.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if Can(p, action) {
			c.Next()
			return
		}
		switch {
		case p == nil:
			AbortWithAppError(c, contextutils.ErrUnauthorized.WithMessage("Authentication required"))
		case p.IsExternal():
			AbortWithAppError(c, contextutils.ErrInsufficientPermissions.WithMessage(
				"API key lacks the %s permission", action))
		default:
			AbortWithAppError(c, contextutils.ErrForbidden.WithMessage("Permission %s required", action))
		}
	}
}

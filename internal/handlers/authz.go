package handlers

import (
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// currentUser returns the session principal, or ErrUnauthorized when the
// request carries none. External principals never reach session routes.
func currentUser(c *gin.Context) (*models.Principal, error) {
	p := middleware.GetPrincipal(c)
	if !p.IsUser() {
		return nil, contextutils.ErrUnauthorized.WithMessage("Authentication required")
	}
	return p, nil
}

// RequireSelfOrAdmin permits the action if the principal is the target user
// or may manage users.
func RequireSelfOrAdmin(p *models.Principal, targetID int) error {
	if !p.IsUser() {
		return contextutils.ErrUnauthorized.WithMessage("Authentication required")
	}
	if p.UserID == targetID || middleware.Can(p, models.ActionUserManage) {
		return nil
	}
	return contextutils.ErrForbidden.WithMessage("You may only view your own account")
}

// actorFor returns the lifecycle actor of the request principal
func actorFor(c *gin.Context) models.Actor {
	return middleware.GetPrincipal(c).Actor()
}

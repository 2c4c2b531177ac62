package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"feedbackhub/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	user := &models.Principal{Kind: models.PrincipalUser, UserID: 1, Role: models.RoleUser}
	admin := &models.Principal{Kind: models.PrincipalUser, UserID: 2, Role: models.RoleAdmin}
	partner := &models.Principal{Kind: models.PrincipalExternal, SystemID: 3,
		Permissions: []string{models.PermissionFeedbackSubmit}}

	tests := []struct {
		name   string
		p      *models.Principal
		action models.Action
		want   bool
	}{
		{"anonymous", nil, models.ActionFeedbackRead, false},
		{"user reads feedback", user, models.ActionFeedbackRead, true},
		{"user creates feedback", user, models.ActionFeedbackCreate, true},
		{"user cannot manage feedback", user, models.ActionFeedbackManage, false},
		{"user cannot manage users", user, models.ActionUserManage, false},
		{"admin manages feedback", admin, models.ActionFeedbackManage, true},
		{"admin manages systems", admin, models.ActionSystemManage, true},
		{"admin keeps user capabilities", admin, models.ActionProfileManage, true},
		{"admin is not an external system", admin, models.ActionFeedbackSubmit, false},
		{"partner submits", partner, models.ActionFeedbackSubmit, true},
		{"partner lacks query", partner, models.ActionFeedbackQuery, false},
		{"partner cannot read user feedback", partner, models.ActionFeedbackRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.p, tt.action))
		})
	}
}

func TestRequireCapability_Responses(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Principal
		status int
		code   string
	}{
		{"anonymous", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"plain user", &models.Principal{Kind: models.PrincipalUser, UserID: 1, Role: models.RoleUser}, http.StatusForbidden, "FORBIDDEN"},
		{"external", &models.Principal{Kind: models.PrincipalExternal, SystemID: 1}, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter()
			router.GET("/", func(c *gin.Context) {
				if tt.p != nil {
					SetPrincipal(c, tt.p)
				}
				c.Next()
			}, RequireCapability(models.ActionUserManage), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, w)["code"])
		})
	}
}

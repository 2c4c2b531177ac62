package handlers

import (
	"net/http"
	"strings"

	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// UserHandler serves registration, login, profile and user administration
type UserHandler struct {
	userService  services.UserServiceInterface
	tokenService services.TokenServiceInterface
	logger       *observability.Logger
}

// NewUserHandler creates a UserHandler
func NewUserHandler(userService services.UserServiceInterface, tokenService services.TokenServiceInterface, logger *observability.Logger) *UserHandler {
	return &UserHandler{
		userService:  userService,
		tokenService: tokenService,
		logger:       logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userStatusRequest struct {
	Status models.UserStatus `json:"status"`
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		)
	}
	return nil
}

// Register handles POST /api/users/register
func (h *UserHandler) Register(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "register")
	defer observability.FinishSpan(span, nil)

	var req models.UserRegistration
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.String("user.username", req.Username))

	user, err := h.userService.Register(ctx, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "User registered", map[string]interface{}{"user_id": user.ID, "username": user.Username})
	respond(c, http.StatusCreated, user, "Registration successful")
}

// Login handles POST /api/users/login. The username field also accepts an email.
func (h *UserHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("auth.username", req.Username),
		attribute.Bool("auth.password_provided", req.Password != ""),
	)

	user, err := h.userService.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.logger.Warn(ctx, "Authentication failed", map[string]interface{}{
			"username":   req.Username,
			"error_code": string(contextutils.GetErrorCode(err)),
		})
		HandleAppError(c, err)
		return
	}

	pair, err := h.tokenService.IssuePair(user)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to issue tokens"))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"user":         user,
		"token":        pair.Token,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
	}, "Login successful")
}

// Refresh handles POST /api/users/refresh
func (h *UserHandler) Refresh(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "refresh")
	defer observability.FinishSpan(span, nil)

	var req refreshRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	claims, err := h.tokenService.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	// Re-read the account so a locked user cannot keep refreshing
	user, err := h.userService.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			HandleAppError(c, contextutils.ErrUnauthorized.WithMessage("Invalid refresh token"))
			return
		}
		HandleAppError(c, err)
		return
	}
	if user.Status != models.UserStatusActive {
		HandleAppError(c, contextutils.ErrAccountDisabled)
		return
	}

	pair, err := h.tokenService.IssuePair(user)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to issue tokens"))
		return
	}
	respond(c, http.StatusOK, pair, "")
}

// GetProfile handles GET /api/users/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_profile")
	defer observability.FinishSpan(span, nil)

	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(ctx, p.UserID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "")
}

// UpdateProfile handles PUT /api/users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_profile")
	defer observability.FinishSpan(span, nil)

	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.ProfileUpdate
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(ctx, p.UserID, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "Profile updated")
}

// ChangePassword handles PUT /api/users/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "change_password")
	defer observability.FinishSpan(span, nil)

	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req passwordChangeRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.userService.ChangePassword(ctx, p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "Password changed", map[string]interface{}{"user_id": p.UserID})
	respond(c, http.StatusOK, nil, "Password changed")
}

// ListUsers handles GET /api/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_users")
	defer observability.FinishSpan(span, nil)

	q, err := parseListQuery(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	filter := models.UserFilter{
		Keyword:   q.Keyword,
		Status:    models.UserStatus(strings.ToUpper(c.Query("status"))),
		Role:      models.UserRole(strings.ToUpper(c.Query("role"))),
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	page, err := h.userService.ListUsers(ctx, filter)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, page)
}

// GetUser handles GET /api/users/:id for the user themselves or an admin
func (h *UserHandler) GetUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_user")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if err := RequireSelfOrAdmin(p, id); err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "")
}

// SetUserStatus handles PUT /api/users/:id/status
func (h *UserHandler) SetUserStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_user_status")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	p, err := currentUser(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req userStatusRequest
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.SetStatus(ctx, p.UserID, id, req.Status)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "User status changed", map[string]interface{}{
		"user_id":  id,
		"status":   string(req.Status),
		"actor_id": p.UserID,
	})
	respond(c, http.StatusOK, user, "User status updated")
}

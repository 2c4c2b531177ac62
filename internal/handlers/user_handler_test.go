package handlers

import (
	"net/http"
	"testing"

	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	env.users.register = func(reg models.UserRegistration) (*models.User, error) {
		if reg.Username == "alice" {
			return nil, contextutils.ErrUserExists.WithMessage("Username %s is already taken", reg.Username)
		}
		return &models.User{ID: 3, Username: reg.Username, Email: reg.Email, Role: models.RoleUser, Status: models.UserStatusActive}, nil
	}

	t.Run("created", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/users/register", map[string]string{
			"username": "bob",
			"email":    "bob@example.com",
			"password": "secret123",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		data := decodeBody(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "bob", data["username"])
		assert.Equal(t, "USER", data["role"])
		assert.NotContains(t, data, "passwordHash")
	})

	t.Run("duplicate username", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/users/register", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "secret123",
		}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "USER_ALREADY_EXISTS", decodeBody(t, w)["code"])
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/users/login", map[string]string{
		"username": "alice",
		"password": "correct-password",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeBody(t, w)["data"].(map[string]interface{})
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, data["refreshToken"])

	// the issued token opens session routes
	w = env.do(http.MethodGet, "/api/users/profile", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "alice", decodeBody(t, w)["data"].(map[string]interface{})["username"])

	w = env.do(http.MethodPost, "/api/users/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeBody(t, w)["code"])
}

func TestGetUser_SelfOrAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/users/1", nil, map[string]string{"Authorization": env.bearer(t, 1)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/users/2", nil, map[string]string{"Authorization": env.bearer(t, 1)})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeBody(t, w)["code"])

	w = env.do(http.MethodGet, "/api/users/1", nil, map[string]string{"Authorization": env.bearer(t, 2)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/users/abc", nil, map[string]string{"Authorization": env.bearer(t, 2)})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, w)["code"])
}

func TestRequireSelfOrAdmin(t *testing.T) {
	user := &models.Principal{Kind: models.PrincipalUser, UserID: 1, Role: models.RoleUser}
	admin := &models.Principal{Kind: models.PrincipalUser, UserID: 2, Role: models.RoleAdmin}
	system := &models.Principal{Kind: models.PrincipalExternal, SystemID: 1}

	assert.NoError(t, RequireSelfOrAdmin(user, 1))
	assert.NoError(t, RequireSelfOrAdmin(admin, 1))
	assert.True(t, contextutils.IsError(RequireSelfOrAdmin(user, 2), contextutils.ErrForbidden))
	assert.True(t, contextutils.IsError(RequireSelfOrAdmin(system, 1), contextutils.ErrUnauthorized))
	assert.True(t, contextutils.IsError(RequireSelfOrAdmin(nil, 1), contextutils.ErrUnauthorized))
}

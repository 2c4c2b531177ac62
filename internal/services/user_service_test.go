package services

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func newTestUserService(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	svc := NewUserServiceWithLogger(db, newTestLogger())
	svc.cost = bcrypt.MinCost
	return svc, mock
}

var userColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name", "phone_number",
	"role", "status", "last_login_at", "created_at", "updated_at",
}

func userRow(t *testing.T, id int, username, password string, role models.UserRole, status models.UserStatus) *sqlmock.Rows {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow(
		id, username, username+"@example.com", string(hash), nil, nil, nil,
		string(role), string(status), nil, now, now,
	)
}

func TestUserService_Register(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "USER", "ACTIVE").
		WillReturnRows(userRow(t, 1, "alice", "secret1", models.RoleUser, models.UserStatusActive))

	user, err := svc.Register(context.Background(), models.UserRegistration{
		Username: " alice ",
		Email:    "alice@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestUserService_RegisterDuplicate(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	_, err := svc.Register(context.Background(), models.UserRegistration{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUserExists))
	assert.Equal(t, http.StatusBadRequest, contextutils.GetErrorCode(err).HTTPStatus())
	assert.Contains(t, err.Error(), "already exists")
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Register(context.Background(), models.UserRegistration{
		Username: "",
		Email:    "not-an-email",
		Password: "123",
	})
	require.Error(t, err)

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeValidationFailed, appErr.Code)
	assert.Len(t, appErr.Fields, 3)
}

func TestUserService_Authenticate(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		svc, mock := newTestUserService(t)
		mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1 OR email = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.Authenticate(context.Background(), "ghost", "whatever")
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidCredentials))
	})

	t.Run("bad password", func(t *testing.T) {
		svc, mock := newTestUserService(t)
		mock.ExpectQuery("SELECT .* FROM users").
			WillReturnRows(userRow(t, 2, "bob", "correct", models.RoleUser, models.UserStatusActive))

		_, err := svc.Authenticate(context.Background(), "bob", "wrong")
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidCredentials))
	})

	t.Run("locked account", func(t *testing.T) {
		svc, mock := newTestUserService(t)
		mock.ExpectQuery("SELECT .* FROM users").
			WillReturnRows(userRow(t, 3, "carol", "correct", models.RoleUser, models.UserStatusLocked))

		_, err := svc.Authenticate(context.Background(), "carol", "correct")
		assert.True(t, contextutils.IsError(err, contextutils.ErrAccountDisabled))
		assert.Equal(t, http.StatusForbidden, contextutils.GetErrorCode(err).HTTPStatus())
	})

	t.Run("success records login", func(t *testing.T) {
		svc, mock := newTestUserService(t)
		mock.ExpectQuery("SELECT .* FROM users").
			WillReturnRows(userRow(t, 4, "dave", "correct", models.RoleAdmin, models.UserStatusActive))
		loginAt := time.Now()
		mock.ExpectQuery("UPDATE users SET last_login_at").
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows([]string{"last_login_at"}).AddRow(loginAt))

		user, err := svc.Authenticate(context.Background(), "dave", "correct")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin())
		assert.True(t, user.LastLoginAt.Valid)
	})
}

func TestUserService_GetUserByIDNotFound(t *testing.T) {
	svc, mock := newTestUserService(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE id = \\$1").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.GetUserByID(context.Background(), 99)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestUserService_ChangePassword(t *testing.T) {
	svc, mock := newTestUserService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("oldpass"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))

	err = svc.ChangePassword(context.Background(), 5, "not-it", "newpass1")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.ChangePassword(context.Background(), 5, "oldpass", "newpass1"))
}

func TestUserService_SetStatusSelfLock(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.SetStatus(context.Background(), 1, 1, models.UserStatusLocked)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrForbidden))
}

func TestUserService_ListUsers(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE \\(username ILIKE \\$1 OR email ILIKE \\$1\\) AND status = \\$2").
		WithArgs("%ali%", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery("SELECT .* FROM users WHERE .* ORDER BY username ASC, id ASC LIMIT \\$3 OFFSET \\$4").
		WithArgs("%ali%", "ACTIVE", 10, 20).
		WillReturnRows(userRow(t, 21, "alison", "pw1234", models.RoleUser, models.UserStatusActive))

	page, err := svc.ListUsers(context.Background(), models.UserFilter{
		Keyword:   "ali",
		Status:    models.UserStatusActive,
		SortBy:    "username",
		SortOrder: "asc",
		Page:      3,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Pagination{Current: 3, PageSize: 10, Total: 21, Pages: 3}, page.Pagination)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "alison", page.Items[0].Username)
}

func TestUserService_EnsureAdminUserExistsCreates(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("SELECT .* FROM users WHERE username = \\$1").
		WithArgs("admin").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("admin", "admin@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "ADMIN", "ACTIVE").
		WillReturnRows(userRow(t, 1, "admin", "password", models.RoleAdmin, models.UserStatusActive))

	require.NoError(t, svc.EnsureAdminUserExists(context.Background(), "admin", "password", "admin@example.com"))
}

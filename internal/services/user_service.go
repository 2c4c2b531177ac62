package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedbackhub/internal/database"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	Register(ctx context.Context, reg models.UserRegistration) (*models.User, error)
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int, upd models.ProfileUpdate) (*models.User, error)
	ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) error
	ResetPassword(ctx context.Context, userID int, newPassword string) error
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.Page[models.User], error)
	SetStatus(ctx context.Context, actorID, userID int, status models.UserStatus) (*models.User, error)
	EnsureAdminUserExists(ctx context.Context, username, password, email string) error
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	logger *observability.Logger
	cost   int
}

// minPasswordLength is enforced on registration and password changes
const minPasswordLength = 6

const userSelectFields = `id, username, email, password_hash, first_name, last_name, phone_number, role, status, last_login_at, created_at, updated_at`

var userSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"username":    "username",
	"email":       "email",
	"lastLoginAt": "last_login_at",
	"id":          "id",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.Role, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, logger *observability.Logger) *UserService {
	return &UserService{db: db, logger: logger, cost: bcrypt.DefaultCost}
}

func (s *UserService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to hash password")
	}
	return string(hashed), nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return contextutils.NewValidationError(contextutils.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}
	return nil
}

// Register creates a USER account. A taken username or email yields USER_ALREADY_EXISTS.
func (s *UserService) Register(ctx context.Context, reg models.UserRegistration) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "register", attribute.String("user.username", reg.Username))
	defer observability.FinishSpan(span, &err)

	return s.createUser(ctx, reg, models.RoleUser)
}

func (s *UserService) createUser(ctx context.Context, reg models.UserRegistration, role models.UserRole) (*models.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)

	var fields []contextutils.FieldError
	if reg.Username == "" {
		fields = append(fields, contextutils.FieldError{Field: "username", Message: "is required"})
	}
	if !contextutils.IsValidEmail(reg.Email) {
		fields = append(fields, contextutils.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(reg.Password) < minPasswordLength {
		fields = append(fields, contextutils.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", minPasswordLength),
		})
	}
	if len(fields) > 0 {
		return nil, contextutils.NewValidationError(fields...)
	}

	hash, err := s.hashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO users (username, email, password_hash, first_name, last_name, phone_number, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		reg.Username, reg.Email, hash,
		models.NullString(reg.FirstName), models.NullString(reg.LastName), models.NullString(reg.PhoneNumber),
		role, models.UserStatusActive))
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "users_username_key"):
			return nil, contextutils.ErrUserExists.WithMessage("Username already exists")
		case database.IsUniqueViolation(err, "users_email_key"):
			return nil, contextutils.ErrUserExists.WithMessage("Email already exists")
		case database.IsUniqueViolation(err, ""):
			return nil, contextutils.ErrUserExists
		}
		return nil, contextutils.WrapError(err, "failed to create user")
	}

	s.logger.Info(ctx, "User registered", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
	})
	return user, nil
}

// Authenticate verifies credentials against username or email and records the login time
func (s *UserService) Authenticate(ctx context.Context, login, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate", attribute.String("user.login", login))
	defer observability.FinishSpan(span, &err)

	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1 OR email = $1 ORDER BY (username = $1) DESC LIMIT 1", userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(login)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrInvalidCredentials
		}
		return nil, contextutils.WrapError(err, "failed to look up user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logger.Warn(ctx, "Login failed: bad password", map[string]interface{}{"user_id": user.ID})
		return nil, contextutils.ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return nil, contextutils.ErrAccountDisabled
	}

	if err = s.db.QueryRowContext(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = $1 RETURNING last_login_at`, user.ID,
	).Scan(&user.LastLoginAt); err != nil {
		// Not fatal; the credentials were valid.
		s.logger.Warn(ctx, "Failed to record login time", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		err = nil
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", observability.AttributeUserID(id))
	defer observability.FinishSpan(span, &err)

	return s.getUser(ctx, "id = $1", id)
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	return s.getUser(ctx, "username = $1", username)
}

func (s *UserService) getUser(ctx context.Context, cond string, arg interface{}) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s", userSelectFields, cond)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("User not found")
		}
		return nil, contextutils.WrapError(err, "failed to get user")
	}
	return user, nil
}

// UpdateProfile applies the supplied profile fields and returns the updated user
func (s *UserService) UpdateProfile(ctx context.Context, userID int, upd models.ProfileUpdate) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_profile", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	w := &whereBuilder{}
	var sets []string
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if !contextutils.IsValidEmail(email) {
			return nil, contextutils.NewValidationError(contextutils.FieldError{Field: "email", Message: "must be a valid email address"})
		}
		sets = append(sets, "email = "+w.arg(email))
	}
	if upd.FirstName != nil {
		sets = append(sets, "first_name = "+w.arg(models.NullIfEmpty(*upd.FirstName)))
	}
	if upd.LastName != nil {
		sets = append(sets, "last_name = "+w.arg(models.NullIfEmpty(*upd.LastName)))
	}
	if upd.PhoneNumber != nil {
		sets = append(sets, "phone_number = "+w.arg(models.NullIfEmpty(*upd.PhoneNumber)))
	}
	if len(sets) == 0 {
		return s.GetUserByID(ctx, userID)
	}

	query := fmt.Sprintf("UPDATE users SET %s, updated_at = NOW() WHERE id = %s RETURNING %s",
		strings.Join(sets, ", "), w.arg(userID), userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, w.args...))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, contextutils.ErrRecordNotFound.WithMessage("User not found")
		case database.IsUniqueViolation(err, "users_email_key"):
			return nil, contextutils.ErrRecordExists.WithMessage("Email already exists")
		}
		return nil, contextutils.WrapError(err, "failed to update profile")
	}
	return user, nil
}

// ChangePassword replaces the password after verifying the current one
func (s *UserService) ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "change_password", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if err = validatePassword(newPassword); err != nil {
		return err
	}

	var hash string
	if err = s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contextutils.ErrRecordNotFound.WithMessage("User not found")
		}
		return contextutils.WrapError(err, "failed to load password")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)) != nil {
		return contextutils.ErrInvalidInput.WithMessage("Current password is incorrect")
	}

	return s.setPassword(ctx, userID, newPassword)
}

// ResetPassword sets a new password without checking the old one
func (s *UserService) ResetPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "reset_password", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if err = validatePassword(newPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, userID, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, userID int, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.ErrRecordNotFound.WithMessage("User not found")
	}
	s.logger.Info(ctx, "Password updated", map[string]interface{}{"user_id": userID})
	return nil
}

// ListUsers returns one page of users matching filter
func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter) (result0 *models.Page[models.User], err error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	ctx, span := observability.TraceUserFunction(ctx, "list_users",
		observability.AttributePage(page), observability.AttributePageSize(size), observability.AttributeKeyword(filter.Keyword))
	defer observability.FinishSpan(span, &err)

	w := &whereBuilder{}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		p := w.arg(likePattern(kw))
		w.add(fmt.Sprintf("(username ILIKE %s OR email ILIKE %s)", p, p))
	}
	if filter.Status != "" {
		w.add("status = " + w.arg(filter.Status))
	}
	if filter.Role != "" {
		w.add("role = " + w.arg(filter.Role))
	}

	var total int
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, contextutils.WrapError(err, "failed to count users")
	}

	pg := models.NewPagination(page, size, total)
	args := append(append([]interface{}{}, w.args...), size, pg.Offset())
	query := fmt.Sprintf("SELECT %s FROM users%s%s LIMIT $%d OFFSET $%d",
		userSelectFields, w.clause(), orderClause(filter.SortBy, filter.SortOrder, userSortColumns, ""),
		len(w.args)+1, len(w.args)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list users")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.User, 0, size)
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan user")
		}
		items = append(items, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list users")
	}

	return &models.Page[models.User]{Items: items, Pagination: pg}, nil
}

// SetStatus changes an account state. An admin may not lock or deactivate themselves.
func (s *UserService) SetStatus(ctx context.Context, actorID, userID int, status models.UserStatus) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_status",
		observability.AttributeUserID(userID), observability.AttributeStatus(string(status)))
	defer observability.FinishSpan(span, &err)

	if !status.Valid() {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: "status", Message: "must be one of ACTIVE, INACTIVE, LOCKED"})
	}
	if actorID == userID && status != models.UserStatusActive {
		return nil, contextutils.ErrForbidden.WithMessage("You cannot lock or deactivate your own account")
	}

	query := fmt.Sprintf("UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING %s", userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, status, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("User not found")
		}
		return nil, contextutils.WrapError(err, "failed to update user status")
	}

	s.logger.Info(ctx, "User status changed", map[string]interface{}{
		"user_id":  userID,
		"actor_id": actorID,
		"status":   string(status),
	})
	return user, nil
}

// EnsureAdminUserExists creates the configured admin on first run. An existing
// account with that username is promoted to ADMIN and re-activated, and its
// password is left alone.
func (s *UserService) EnsureAdminUserExists(ctx context.Context, username, password, email string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("admin.username", username))
	defer observability.FinishSpan(span, &err)

	if username == "" {
		return contextutils.ErrorWithContextf("admin username cannot be empty")
	}

	existing, err := s.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin && existing.Status == models.UserStatusActive {
			s.logger.Debug(ctx, "Admin user already exists", map[string]interface{}{"username": username})
			return nil
		}
		_, err = s.db.ExecContext(ctx, `UPDATE users SET role = $1, status = $2, updated_at = NOW() WHERE id = $3`,
			models.RoleAdmin, models.UserStatusActive, existing.ID)
		if err != nil {
			return contextutils.WrapError(err, "failed to promote admin user")
		}
		s.logger.Info(ctx, "Promoted existing user to admin", map[string]interface{}{"username": username})
		return nil
	case !contextutils.IsError(err, contextutils.ErrRecordNotFound):
		return contextutils.WrapError(err, "failed to check if admin user exists")
	}

	if password == "" {
		return contextutils.ErrorWithContextf("admin password cannot be empty")
	}
	if email == "" {
		email = username + "@localhost.localdomain"
	}
	_, err = s.createUser(ctx, models.UserRegistration{Username: username, Email: email, Password: password}, models.RoleAdmin)
	if err != nil {
		return contextutils.WrapError(err, "failed to create admin user")
	}
	return nil
}

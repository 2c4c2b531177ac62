package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackhub/internal/database"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// ExternalSystemServiceInterface manages partner registrations and their API keys
type ExternalSystemServiceInterface interface {
	CreateSystem(ctx context.Context, input models.ExternalSystemInput) (*models.ExternalSystem, *models.IssuedAPIKey, error)
	EnsureSystem(ctx context.Context, input models.ExternalSystemInput) (*models.ExternalSystem, bool, error)
	ListSystems(ctx context.Context, filter models.ExternalSystemFilter) (*models.Page[models.ExternalSystem], error)
	GetSystem(ctx context.Context, id int) (*models.ExternalSystem, error)
	GetSystemByName(ctx context.Context, name string) (*models.ExternalSystem, error)
	SetSystemStatus(ctx context.Context, id int, status models.SystemStatus) (*models.ExternalSystem, error)
	IssueKey(ctx context.Context, systemID int, name string, expiresAt *time.Time) (*models.IssuedAPIKey, error)
	ImportKey(ctx context.Context, systemID int, name, rawKey string) (*models.APIKey, bool, error)
	DisableKey(ctx context.Context, systemID, keyID int) error
	ListKeys(ctx context.Context, systemID int) ([]models.APIKey, error)
	ResolveAPIKey(ctx context.Context, rawKey string) (*models.ResolvedAPIKey, error)
	TouchLastUsed(ctx context.Context, keyID int) error
}

// ExternalSystemService implements ExternalSystemServiceInterface
type ExternalSystemService struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewExternalSystemService creates a new ExternalSystemService instance
func NewExternalSystemService(db *sql.DB, logger *observability.Logger) *ExternalSystemService {
	return &ExternalSystemService{db: db, logger: logger, now: time.Now}
}

const (
	systemSelectFields = `id, name, description, permissions, rate_limit, status, created_at, updated_at`
	apiKeySelectFields = `id, external_system_id, name, key_hash, key_prefix, status, last_used_at, expires_at, created_at`

	systemNameConstraint = "external_systems_name_key"
	apiKeyHashConstraint = "api_keys_key_hash_key"

	// RawAPIKeyPrefix starts every generated key so leaked keys are easy to grep for
	RawAPIKeyPrefix = "fbk_"
	maxSystemName   = 100
)

var systemSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"id":        "id",
}

// GenerateRawAPIKey returns a new random key: the fbk_ prefix and 32 hex characters
func GenerateRawAPIKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", contextutils.WrapError(err, "failed to generate api key")
	}
	return RawAPIKeyPrefix + hex.EncodeToString(buf), nil
}

func scanSystem(row rowScanner) (*models.ExternalSystem, error) {
	s := &models.ExternalSystem{}
	var description sql.NullString
	var permissions pq.StringArray
	if err := row.Scan(&s.ID, &s.Name, &description, &permissions, &s.RateLimit, &s.Status,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		s.Description = &description.String
	}
	s.Permissions = []string(permissions)
	if s.Permissions == nil {
		s.Permissions = []string{}
	}
	return s, nil
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	k := &models.APIKey{}
	if err := row.Scan(&k.ID, &k.ExternalSystemID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Status,
		&k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt); err != nil {
		return nil, err
	}
	return k, nil
}

func validateSystemInput(input *models.ExternalSystemInput) error {
	var fields []contextutils.FieldError

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		fields = append(fields, contextutils.FieldError{Field: "name", Message: "is required"})
	} else if len(input.Name) > maxSystemName {
		fields = append(fields, contextutils.FieldError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxSystemName)})
	}

	if input.Permissions == nil {
		input.Permissions = append([]string(nil), models.KnownExternalPermissions...)
	}
	seen := make(map[string]bool, len(input.Permissions))
	perms := make([]string, 0, len(input.Permissions))
	for i, p := range input.Permissions {
		p = strings.TrimSpace(p)
		if !models.IsKnownExternalPermission(p) {
			fields = append(fields, contextutils.FieldError{
				Field:   fmt.Sprintf("permissions[%d]", i),
				Message: fmt.Sprintf("unknown permission %q", p),
			})
			continue
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	input.Permissions = perms

	if input.RateLimit != nil && *input.RateLimit < 0 {
		fields = append(fields, contextutils.FieldError{Field: "rateLimit", Message: "must not be negative"})
	}

	if len(fields) > 0 {
		return contextutils.NewValidationError(fields...)
	}
	return nil
}

// CreateSystem registers a system and issues its first key in one transaction.
// The raw key is returned here and never again.
func (s *ExternalSystemService) CreateSystem(ctx context.Context, input models.ExternalSystemInput) (result0 *models.ExternalSystem, result1 *models.IssuedAPIKey, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "create_system", attribute.String("system.name", input.Name))
	defer observability.FinishSpan(span, &err)

	if err = validateSystemInput(&input); err != nil {
		return nil, nil, err
	}
	rateLimit := 0
	if input.RateLimit != nil {
		rateLimit = *input.RateLimit
	}

	var system *models.ExternalSystem
	var issued *models.IssuedAPIKey
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		system, err = scanSystem(tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO external_systems (name, description, permissions, rate_limit, status)
			VALUES ($1, $2, $3, $4, $5) RETURNING %s`, systemSelectFields),
			input.Name, models.NullString(input.Description), pq.Array(input.Permissions), rateLimit, models.SystemActive))
		if err != nil {
			if database.IsUniqueViolation(err, systemNameConstraint) {
				return contextutils.ErrRecordExists.WithMessage("External system %q already exists", input.Name)
			}
			return contextutils.WrapError(err, "failed to create external system")
		}

		issued, err = issueKey(ctx, tx, system.ID, "default", nil)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(observability.AttributeSystemID(system.ID))
	s.logger.Info(ctx, "External system created", map[string]interface{}{
		"system_id":   system.ID,
		"system_name": system.Name,
		"permissions": system.Permissions,
		"key_prefix":  issued.Key.KeyPrefix,
	})
	return system, issued, nil
}

// EnsureSystem creates the named system without any key unless it already
// exists. created reports whether a row was inserted.
func (s *ExternalSystemService) EnsureSystem(ctx context.Context, input models.ExternalSystemInput) (result0 *models.ExternalSystem, created bool, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "ensure_system", attribute.String("system.name", input.Name))
	defer observability.FinishSpan(span, &err)

	if err = validateSystemInput(&input); err != nil {
		return nil, false, err
	}
	rateLimit := 0
	if input.RateLimit != nil {
		rateLimit = *input.RateLimit
	}

	sys, err := scanSystem(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO external_systems (name, description, permissions, rate_limit, status)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO NOTHING RETURNING %s`, systemSelectFields),
		input.Name, models.NullString(input.Description), pq.Array(input.Permissions), rateLimit, models.SystemActive))
	switch {
	case err == nil:
		s.logger.Info(ctx, "External system created", map[string]interface{}{
			"system_id":   sys.ID,
			"system_name": sys.Name,
		})
		return sys, true, nil
	case errors.Is(err, sql.ErrNoRows):
		sys, err = s.getSystem(ctx, "name", input.Name)
		return sys, false, err
	}
	return nil, false, contextutils.WrapError(err, "failed to ensure external system")
}

func issueKey(ctx context.Context, q rowQuerier, systemID int, name string, expiresAt *time.Time) (*models.IssuedAPIKey, error) {
	raw, err := GenerateRawAPIKey()
	if err != nil {
		return nil, err
	}
	key, err := insertKey(ctx, q, systemID, name, raw, expiresAt)
	if err != nil {
		return nil, err
	}
	return &models.IssuedAPIKey{Key: *key, RawKey: raw}, nil
}

func insertKey(ctx context.Context, q rowQuerier, systemID int, name, raw string, expiresAt *time.Time) (*models.APIKey, error) {
	var exp sql.NullTime
	if expiresAt != nil {
		exp = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	key, err := scanAPIKey(q.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO api_keys (external_system_id, name, key_hash, key_prefix, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING %s`, apiKeySelectFields),
		systemID, name, contextutils.HashAPIKey(raw), contextutils.APIKeyPrefix(raw), models.SystemActive, exp))
	if err != nil {
		if database.IsUniqueViolation(err, apiKeyHashConstraint) {
			return nil, contextutils.ErrRecordExists.WithMessage("API key already registered")
		}
		if database.IsForeignKeyViolation(err) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("External system not found")
		}
		return nil, contextutils.WrapError(err, "failed to store api key")
	}
	return key, nil
}

// ListSystems returns one page of registered systems
func (s *ExternalSystemService) ListSystems(ctx context.Context, filter models.ExternalSystemFilter) (result0 *models.Page[models.ExternalSystem], err error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	ctx, span := observability.TraceExternalFunction(ctx, "list_systems",
		observability.AttributePage(page), observability.AttributePageSize(size))
	defer observability.FinishSpan(span, &err)

	w := &whereBuilder{}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		w.add("name ILIKE " + w.arg(likePattern(kw)))
	}
	if filter.Status != "" {
		w.add("status = " + w.arg(filter.Status))
	}

	var total int
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM external_systems"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, contextutils.WrapError(err, "failed to count external systems")
	}

	pg := models.NewPagination(page, size, total)
	args := append(append([]interface{}{}, w.args...), size, pg.Offset())
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM external_systems%s%s LIMIT $%d OFFSET $%d",
		systemSelectFields, w.clause(), orderClause("", "", systemSortColumns, ""), len(w.args)+1, len(w.args)+2), args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list external systems")
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.ExternalSystem, 0, size)
	for rows.Next() {
		sys, scanErr := scanSystem(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan external system")
		}
		items = append(items, *sys)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list external systems")
	}
	return &models.Page[models.ExternalSystem]{Items: items, Pagination: pg}, nil
}

func (s *ExternalSystemService) getSystem(ctx context.Context, cond string, arg interface{}) (*models.ExternalSystem, error) {
	sys, err := scanSystem(s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM external_systems WHERE %s = $1", systemSelectFields, cond), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("External system not found")
		}
		return nil, contextutils.WrapError(err, "failed to get external system")
	}
	return sys, nil
}

// GetSystem returns a system by id
func (s *ExternalSystemService) GetSystem(ctx context.Context, id int) (result0 *models.ExternalSystem, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "get_system", observability.AttributeSystemID(id))
	defer observability.FinishSpan(span, &err)
	return s.getSystem(ctx, "id", id)
}

// GetSystemByName returns a system by its unique name
func (s *ExternalSystemService) GetSystemByName(ctx context.Context, name string) (result0 *models.ExternalSystem, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "get_system_by_name", attribute.String("system.name", name))
	defer observability.FinishSpan(span, &err)
	return s.getSystem(ctx, "name", name)
}

// SetSystemStatus enables or disables a system. Keys of a disabled system stop
// authenticating with SYSTEM_DISABLED.
func (s *ExternalSystemService) SetSystemStatus(ctx context.Context, id int, status models.SystemStatus) (result0 *models.ExternalSystem, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "set_system_status",
		observability.AttributeSystemID(id), observability.AttributeStatus(string(status)))
	defer observability.FinishSpan(span, &err)

	if !status.Valid() {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: "status", Message: "must be ACTIVE or DISABLED"})
	}

	sys, err := scanSystem(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE external_systems SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING %s`, systemSelectFields),
		status, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("External system not found")
		}
		return nil, contextutils.WrapError(err, "failed to update external system")
	}
	s.logger.Info(ctx, "External system status changed", map[string]interface{}{
		"system_id": id,
		"status":    string(status),
	})
	return sys, nil
}

// IssueKey creates an additional key for a system
func (s *ExternalSystemService) IssueKey(ctx context.Context, systemID int, name string, expiresAt *time.Time) (result0 *models.IssuedAPIKey, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "issue_key", observability.AttributeSystemID(systemID))
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: "name", Message: "is required"})
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: "expiresAt", Message: "must be in the future"})
	}

	issued, err := issueKey(ctx, s.db, systemID, name, expiresAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "API key issued", map[string]interface{}{
		"system_id":  systemID,
		"key_id":     issued.Key.ID,
		"key_prefix": issued.Key.KeyPrefix,
	})
	return issued, nil
}

// ImportKey stores a caller-chosen raw key (used by seeding). When the key is
// already registered to the same system the existing record is returned and
// created is false.
func (s *ExternalSystemService) ImportKey(ctx context.Context, systemID int, name, rawKey string) (result0 *models.APIKey, created bool, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "import_key", observability.AttributeSystemID(systemID))
	defer observability.FinishSpan(span, &err)

	existing, err := scanAPIKey(s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM api_keys WHERE key_hash = $1", apiKeySelectFields), contextutils.HashAPIKey(rawKey)))
	switch {
	case err == nil:
		if existing.ExternalSystemID != systemID {
			return nil, false, contextutils.ErrConflict.WithMessage("API key is registered to another system")
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, contextutils.WrapError(err, "failed to look up api key")
	}

	key, err := insertKey(ctx, s.db, systemID, name, rawKey, nil)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// DisableKey disables one key of a system
func (s *ExternalSystemService) DisableKey(ctx context.Context, systemID, keyID int) (err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "disable_key",
		observability.AttributeSystemID(systemID), attribute.Int("api_key.id", keyID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET status = $1 WHERE id = $2 AND external_system_id = $3`,
		models.SystemDisabled, keyID, systemID)
	if err != nil {
		return contextutils.WrapError(err, "failed to disable api key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.ErrRecordNotFound.WithMessage("API key not found")
	}
	s.logger.Info(ctx, "API key disabled", map[string]interface{}{"system_id": systemID, "key_id": keyID})
	return nil
}

// ListKeys returns every key of a system, newest first
func (s *ExternalSystemService) ListKeys(ctx context.Context, systemID int) (result0 []models.APIKey, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "list_keys", observability.AttributeSystemID(systemID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM api_keys WHERE external_system_id = $1 ORDER BY created_at DESC, id DESC", apiKeySelectFields), systemID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list api keys")
	}
	defer func() { _ = rows.Close() }()

	keys := make([]models.APIKey, 0)
	for rows.Next() {
		k, scanErr := scanAPIKey(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan api key")
		}
		keys = append(keys, *k)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list api keys")
	}
	return keys, nil
}

// ResolveAPIKey looks a raw key up by hash. Unknown, disabled and expired keys
// are all INVALID_API_KEY. When the owning system is disabled the resolved key
// is still returned together with SYSTEM_DISABLED so callers can attribute the call.
func (s *ExternalSystemService) ResolveAPIKey(ctx context.Context, rawKey string) (result0 *models.ResolvedAPIKey, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "resolve_api_key",
		attribute.String("api_key.prefix", contextutils.APIKeyPrefix(rawKey)))
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(rawKey) == "" {
		return nil, contextutils.ErrMissingAPIKey
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT k.id, k.external_system_id, k.name, k.key_hash, k.key_prefix, k.status, k.last_used_at, k.expires_at, k.created_at,
			s.id, s.name, s.description, s.permissions, s.rate_limit, s.status, s.created_at, s.updated_at
		FROM api_keys k
		JOIN external_systems s ON s.id = k.external_system_id
		WHERE k.key_hash = $1`, contextutils.HashAPIKey(rawKey))

	var resolved models.ResolvedAPIKey
	k := &resolved.Key
	sys := &resolved.System
	var description sql.NullString
	var permissions pq.StringArray
	err = row.Scan(&k.ID, &k.ExternalSystemID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Status, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt,
		&sys.ID, &sys.Name, &description, &permissions, &sys.RateLimit, &sys.Status, &sys.CreatedAt, &sys.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrInvalidAPIKey
		}
		return nil, contextutils.WrapError(err, "failed to resolve api key")
	}
	if description.Valid {
		sys.Description = &description.String
	}
	sys.Permissions = []string(permissions)

	span.SetAttributes(observability.AttributeSystemID(sys.ID))
	// Rejected keys still report what they resolved to, so the call is attributed
	if k.Status != models.SystemActive || k.IsExpired(s.now()) {
		return &resolved, contextutils.ErrInvalidAPIKey
	}
	if sys.Status != models.SystemActive {
		return &resolved, contextutils.ErrSystemDisabled
	}
	return &resolved, nil
}

// TouchLastUsed records that a key authenticated a request
func (s *ExternalSystemService) TouchLastUsed(ctx context.Context, keyID int) (err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "touch_last_used", attribute.Int("api_key.id", keyID))
	defer observability.FinishSpan(span, &err)

	if _, err = s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID); err != nil {
		return contextutils.WrapError(err, "failed to touch api key")
	}
	return nil
}

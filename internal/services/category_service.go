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
)

// CategoryServiceInterface manages the category tree
type CategoryServiceInterface interface {
	Create(ctx context.Context, input models.CategoryInput) (*models.Category, error)
	Get(ctx context.Context, id int) (*models.Category, error)
	Update(ctx context.Context, id int, input models.CategoryInput) (*models.Category, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, filter models.CategoryFilter) (*models.Page[models.Category], error)
	Tree(ctx context.Context) ([]*models.Category, error)
	EnsureDefaults(ctx context.Context, names []string) (int, error)
}

// CategoryService implements CategoryServiceInterface
type CategoryService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewCategoryService creates a new CategoryService
func NewCategoryService(db *sql.DB, logger *observability.Logger) *CategoryService {
	return &CategoryService{db: db, logger: logger}
}

const categorySelectFields = `id, name, description, color, is_active, sort_order, parent_id, created_at, updated_at`

var categorySortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"sortOrder": "sort_order",
	"id":        "id",
}

func scanCategory(row rowScanner) (*models.Category, error) {
	c := &models.Category{}
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.IsActive, &c.SortOrder,
		&c.ParentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func validateCategoryInput(input models.CategoryInput, creating bool) error {
	var fields []contextutils.FieldError
	if (input.Name != nil && strings.TrimSpace(*input.Name) == "") || (creating && input.Name == nil) {
		fields = append(fields, contextutils.FieldError{Field: "name", Message: "is required"})
	}
	if input.Color != nil && *input.Color != "" && !contextutils.IsValidHexColor(*input.Color) {
		fields = append(fields, contextutils.FieldError{Field: "color", Message: "must be a hex color such as #1890ff"})
	}
	if len(fields) > 0 {
		return contextutils.NewValidationError(fields...)
	}
	return nil
}

// Create inserts a category. A parent that does not exist is rejected.
func (s *CategoryService) Create(ctx context.Context, input models.CategoryInput) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "create")
	defer observability.FinishSpan(span, &err)

	if err = validateCategoryInput(input, true); err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	sortOrder := 0
	if input.SortOrder != nil {
		sortOrder = *input.SortOrder
	}
	var parentID sql.NullInt64
	if input.ParentID != nil && *input.ParentID > 0 {
		parentID = models.NullInt(input.ParentID)
	}

	query := fmt.Sprintf(`INSERT INTO categories (name, description, color, is_active, sort_order, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING %s`, categorySelectFields)
	cat, err := scanCategory(s.db.QueryRowContext(ctx, query,
		strings.TrimSpace(*input.Name), models.NullString(input.Description), models.NullString(input.Color),
		isActive, sortOrder, parentID))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, contextutils.ErrInvalidInput.WithMessage("Parent category not found")
		}
		return nil, contextutils.WrapError(err, "failed to create category")
	}

	s.logger.Info(ctx, "Category created", map[string]interface{}{"category_id": cat.ID, "name": cat.Name})
	return cat, nil
}

// Get returns one category
func (s *CategoryService) Get(ctx context.Context, id int) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "get", observability.AttributeCategoryID(id))
	defer observability.FinishSpan(span, &err)

	return getCategory(ctx, s.db, id)
}

func getCategory(ctx context.Context, q rowQuerier, id int) (*models.Category, error) {
	cat, err := scanCategory(q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM categories WHERE id = $1", categorySelectFields), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound.WithMessage("Category not found")
		}
		return nil, contextutils.WrapError(err, "failed to get category")
	}
	return cat, nil
}

// categoryMoveLockKey serializes re-parenting so two concurrent moves cannot
// close a loop between them
const categoryMoveLockKey int64 = 0x6662_6361_7467

// Update applies the supplied fields. Moving a node under itself or one of
// its descendants is rejected; a ParentID of 0 moves it to the root. The
// ancestry check and the write share one transaction.
func (s *CategoryService) Update(ctx context.Context, id int, input models.CategoryInput) (result0 *models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "update", observability.AttributeCategoryID(id))
	defer observability.FinishSpan(span, &err)

	if err = validateCategoryInput(input, false); err != nil {
		return nil, err
	}
	if input.ParentID != nil && *input.ParentID == id {
		return nil, contextutils.ErrInvalidInput.WithMessage("A category cannot be its own parent")
	}

	w := &whereBuilder{}
	var sets []string
	if input.Name != nil {
		sets = append(sets, "name = "+w.arg(strings.TrimSpace(*input.Name)))
	}
	if input.Description != nil {
		sets = append(sets, "description = "+w.arg(models.NullIfEmpty(*input.Description)))
	}
	if input.Color != nil {
		sets = append(sets, "color = "+w.arg(models.NullIfEmpty(*input.Color)))
	}
	if input.IsActive != nil {
		sets = append(sets, "is_active = "+w.arg(*input.IsActive))
	}
	if input.SortOrder != nil {
		sets = append(sets, "sort_order = "+w.arg(*input.SortOrder))
	}
	if input.ParentID != nil {
		var parent sql.NullInt64
		if *input.ParentID > 0 {
			parent = models.NullInt(input.ParentID)
		}
		sets = append(sets, "parent_id = "+w.arg(parent))
	}
	if len(sets) == 0 {
		return getCategory(ctx, s.db, id)
	}
	query := fmt.Sprintf("UPDATE categories SET %s, updated_at = NOW() WHERE id = %s RETURNING %s",
		strings.Join(sets, ", "), w.arg(id), categorySelectFields)

	var cat *models.Category
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if input.ParentID != nil && *input.ParentID > 0 {
			if err := s.checkMove(ctx, tx, id, *input.ParentID); err != nil {
				return err
			}
		}

		updated, err := scanCategory(tx.QueryRowContext(ctx, query, w.args...))
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return contextutils.ErrRecordNotFound.WithMessage("Category not found")
			case database.IsForeignKeyViolation(err):
				return contextutils.ErrInvalidInput.WithMessage("Parent category not found")
			}
			return contextutils.WrapError(err, "failed to update category")
		}
		cat = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// checkMove locks the node and rejects a parent inside its own subtree
func (s *CategoryService) checkMove(ctx context.Context, tx *sql.Tx, id, parentID int) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, categoryMoveLockKey); err != nil {
		return contextutils.WrapError(err, "failed to lock category tree")
	}

	var lockedID int
	if err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contextutils.ErrRecordNotFound.WithMessage("Category not found")
		}
		return contextutils.WrapError(err, "failed to lock category")
	}

	var descendant bool
	err := tx.QueryRowContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT id FROM categories WHERE id = $1
			UNION
			SELECT c.id FROM categories c JOIN subtree st ON c.parent_id = st.id
		)
		SELECT EXISTS(SELECT 1 FROM subtree WHERE id = $2)`, id, parentID).Scan(&descendant)
	if err != nil {
		return contextutils.WrapError(err, "failed to check category ancestry")
	}
	if descendant {
		return contextutils.ErrInvalidInput.WithMessage("A category cannot be moved under one of its descendants")
	}
	return nil
}

// Tree returns the active categories as a forest ordered by sort_order, id
func (s *CategoryService) Tree(ctx context.Context) (result0 []*models.Category, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "tree")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM categories WHERE is_active = TRUE ORDER BY sort_order ASC, id ASC", categorySelectFields))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load categories")
	}
	defer func() { _ = rows.Close() }()

	var flat []*models.Category
	for rows.Next() {
		c, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan category")
		}
		flat = append(flat, c)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to load categories")
	}

	return BuildCategoryTree(flat), nil
}

// BuildCategoryTree links pre-sorted categories into a forest. Only nodes
// without a parent are roots; a node is kept when its parent chain reaches
// one of them, so subtrees under an absent (inactive) parent and loops with
// no root are left out. Every kept node appears exactly once.
func BuildCategoryTree(flat []*models.Category) []*models.Category {
	children := make(map[int][]*models.Category, len(flat))
	roots := make([]*models.Category, 0)
	for _, c := range flat {
		c.Children = nil
		if !c.ParentID.Valid {
			roots = append(roots, c)
			continue
		}
		pid := int(c.ParentID.Int64)
		children[pid] = append(children[pid], c)
	}

	visited := make(map[int]bool, len(flat))
	queue := append([]*models.Category(nil), roots...)
	for _, r := range roots {
		visited[r.ID] = true
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, child := range children[node.ID] {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			node.Children = append(node.Children, child)
			queue = append(queue, child)
		}
	}
	return roots
}

// EnsureDefaults inserts the named root categories when no category exists
// yet, returning how many were created.
func (s *CategoryService) EnsureDefaults(ctx context.Context, names []string) (result0 int, err error) {
	ctx, span := observability.TraceCategoryFunction(ctx, "ensure_defaults")
	defer observability.FinishSpan(span, &err)

	var count int
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return 0, contextutils.WrapError(err, "failed to count categories")
	}
	if count > 0 {
		return 0, nil
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for i, name := range names {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (name, is_active, sort_order) VALUES ($1, TRUE, $2)`, name, i+1); err != nil {
				return contextutils.WrapErrorf(err, "failed to insert category %q", name)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

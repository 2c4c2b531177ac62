package handlers

import (
	"net/http"

	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"

	"github.com/gin-gonic/gin"
)

// CategoryHandler serves category browsing and administration
type CategoryHandler struct {
	categoryService services.CategoryServiceInterface
	logger          *observability.Logger
}

// NewCategoryHandler creates a CategoryHandler
func NewCategoryHandler(cs services.CategoryServiceInterface, logger *observability.Logger) *CategoryHandler {
	return &CategoryHandler{categoryService: cs, logger: logger}
}

// ListCategories handles GET /api/categories
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_categories")
	defer observability.FinishSpan(span, nil)

	q, err := parseListQuery(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	filter := models.CategoryFilter{
		Keyword:   q.Keyword,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if filter.IsActive, err = queryBool(c, "isActive"); err != nil {
		HandleAppError(c, err)
		return
	}
	if filter.ParentID, err = queryInt(c, "parentId"); err != nil {
		HandleAppError(c, err)
		return
	}

	page, err := h.categoryService.List(ctx, filter)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	WritePaginated(c, page)
}

// GetTree handles GET /api/categories/tree
func (h *CategoryHandler) GetTree(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "category_tree")
	defer observability.FinishSpan(span, nil)

	roots, err := h.categoryService.Tree(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if roots == nil {
		roots = []*models.Category{}
	}
	respond(c, http.StatusOK, roots, "")
}

// GetCategory handles GET /api/categories/:id
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_category")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	cat, err := h.categoryService.Get(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, cat, "")
}

// CreateCategory handles POST /api/categories
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_category")
	defer observability.FinishSpan(span, nil)

	var req models.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	cat, err := h.categoryService.Create(ctx, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusCreated, cat, "Category created")
}

// UpdateCategory handles PUT /api/categories/:id
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_category")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req models.CategoryInput
	if err := bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	cat, err := h.categoryService.Update(ctx, id, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	respond(c, http.StatusOK, cat, "Category updated")
}

// DeleteCategory handles DELETE /api/categories/:id
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_category")
	defer observability.FinishSpan(span, nil)

	id, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if err := h.categoryService.Delete(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "Category deleted", map[string]interface{}{"category_id": id})
	respond(c, http.StatusOK, nil, "Category deleted")
}

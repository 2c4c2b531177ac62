package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// ParsePagination parses page and limit from the query string. Missing or
// invalid values fall back to defaults and limit is capped at maxSize.
func ParsePagination(c *gin.Context, defaultPage, defaultSize, maxSize int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if err != nil || page < 1 {
		page = defaultPage
	}

	size, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	return page, size
}

// listQuery holds the query parameters shared by every list endpoint
type listQuery struct {
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
	Keyword      string
	StartDate    *time.Time
	EndDate      *time.Time
	EndExclusive bool
}

// parseListQuery reads pagination, sorting, keyword and the created_at date
// range. Malformed dates are reported together as one validation error.
func parseListQuery(c *gin.Context) (listQuery, error) {
	q := listQuery{
		SortBy:    strings.TrimSpace(c.Query("sortBy")),
		SortOrder: strings.ToLower(strings.TrimSpace(c.Query("sortOrder"))),
		Keyword:   strings.TrimSpace(c.Query("keyword")),
	}
	q.Page, q.PageSize = ParsePagination(c, 1, config.DefaultPageSize, config.MaxPageSize)
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}

	var fields []contextutils.FieldError
	if v := strings.TrimSpace(c.Query("startDate")); v != "" {
		t, _, err := contextutils.ParseDateBound(v, false)
		if err != nil {
			fields = append(fields, contextutils.FieldError{Field: "startDate", Message: "must be RFC3339 or YYYY-MM-DD"})
		} else {
			q.StartDate = &t
		}
	}
	if v := strings.TrimSpace(c.Query("endDate")); v != "" {
		t, exclusive, err := contextutils.ParseDateBound(v, true)
		if err != nil {
			fields = append(fields, contextutils.FieldError{Field: "endDate", Message: "must be RFC3339 or YYYY-MM-DD"})
		} else {
			q.EndDate = &t
			q.EndExclusive = exclusive
		}
	}
	if len(fields) > 0 {
		return q, contextutils.NewValidationError(fields...)
	}
	return q, nil
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, key string) (*int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: key, Message: "must be an integer"})
	}
	return &n, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(c *gin.Context, key string) (*bool, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, contextutils.NewValidationError(contextutils.FieldError{Field: key, Message: "must be true or false"})
	}
	return &b, nil
}

// pathID parses a positive integer path parameter
func pathID(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		return 0, contextutils.ErrInvalidInput.WithMessage("Invalid %s", name)
	}
	return id, nil
}

// respond writes the success envelope
func respond(c *gin.Context, status int, data any, message string) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

// WritePaginated writes a page inside the success envelope
func WritePaginated[T any](c *gin.Context, page *models.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	respond(c, http.StatusOK, gin.H{
		"items":      items,
		"pagination": page.Pagination,
	}, "")
}

// HandleAppError writes the failure envelope for err
func HandleAppError(c *gin.Context, err error) {
	middleware.HandleAppError(c, err)
}

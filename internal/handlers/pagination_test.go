package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedbackhub/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination_DefaultsAndBounds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotPage, gotSize int

	r.GET("/test", func(c *gin.Context) {
		gotPage, gotSize = ParsePagination(c, 1, 20, 100)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		query      string
		page, size int
	}{
		{"", 1, 20},
		{"?page=abc&limit=-5", 1, 20},
		{"?page=0&limit=0", 1, 20},
		{"?page=3&limit=50", 3, 50},
		{"?page=2&limit=5000", 2, 100},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test"+tt.query, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.page, gotPage, tt.query)
		assert.Equal(t, tt.size, gotSize, tt.query)
	}
}

func TestParseListQuery_DateRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var q listQuery
	var err error

	r.GET("/list", func(c *gin.Context) {
		q, err = parseListQuery(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/list?startDate=2024-05-01&endDate=2024-05-31&keyword=%20crash%20&sortOrder=ASC", nil)
	r.ServeHTTP(w, req)

	require.NoError(t, err)
	assert.Equal(t, "crash", q.Keyword)
	assert.Equal(t, "asc", q.SortOrder)
	require.NotNil(t, q.StartDate)
	require.NotNil(t, q.EndDate)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *q.StartDate)
	// a plain end date covers the whole day
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *q.EndDate)
	assert.True(t, q.EndExclusive)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/list?endDate=2024-05-31T12:00:00Z&sortOrder=sideways", nil)
	r.ServeHTTP(w, req)

	require.NoError(t, err)
	assert.False(t, q.EndExclusive)
	assert.Equal(t, "desc", q.SortOrder)
}

func TestWritePaginated_EmptyItemsRenderAsArray(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/paginated", func(c *gin.Context) {
		WritePaginated(c, &models.Page[int]{Pagination: models.NewPagination(1, 10, 0)})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/paginated", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Items      []int             `json:"items"`
			Pagination models.Pagination `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotNil(t, body.Data.Items)
	assert.Empty(t, body.Data.Items)
	assert.Equal(t, 0, body.Data.Pagination.Pages)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

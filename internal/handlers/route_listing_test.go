package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteListingHandler_CollectRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/b", func(_ *gin.Context) {})
	router.POST("/a", func(_ *gin.Context) {})
	router.GET("/a", func(_ *gin.Context) {})
	router.GET("/debug/pprof", func(_ *gin.Context) {})
	router.GET("/uploads/*filepath", func(_ *gin.Context) {})

	handler := NewRouteListingHandler("Test Service")
	handler.CollectRoutes(router)

	assert.Equal(t, []RouteInfo{
		{Method: "GET", Path: "/a"},
		{Method: "POST", Path: "/a"},
		{Method: "GET", Path: "/b"},
	}, handler.Routes())
}

func TestRouteListing_ServedUnderAPI(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "feedbackhub", data["service"])
	build := data["build"].(map[string]interface{})
	assert.Equal(t, "feedbackhub", build["name"])
	assert.Equal(t, "dev", build["version"])

	seen := map[string]bool{}
	for _, raw := range data["routes"].([]interface{}) {
		r := raw.(map[string]interface{})
		seen[r["method"].(string)+" "+r["path"].(string)] = true
	}
	for _, want := range []string{
		"POST /api/users/register",
		"GET /api/feedback",
		"POST /api/feedback/:id/processing",
		"GET /api/categories/tree",
		"POST /api/external/feedback/submit",
		"POST /api/external/feedback/batch-status",
		"GET /api/external-systems/:id/call-logs",
		"POST /api/upload",
		"GET /health",
	} {
		assert.True(t, seen[want], want)
	}
}

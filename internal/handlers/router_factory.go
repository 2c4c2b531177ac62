package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"feedbackhub/internal/config"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	"feedbackhub/internal/storage"
	contextutils "feedbackhub/internal/utils"
)

// IMPORTANT: When adding a JSON endpoint, add its body schema to
// internal/middleware/schemas.yaml and wire it with validate(...) below.

// RouterServices bundles what the router hands to its handlers
type RouterServices struct {
	Users       services.UserServiceInterface
	Tokens      services.TokenServiceInterface
	Feedback    services.FeedbackServiceInterface
	Categories  services.CategoryServiceInterface
	Systems     services.ExternalSystemServiceInterface
	CallLogs    services.APICallLogServiceInterface
	RateLimiter services.RateLimiterInterface
	Store       storage.BlobStore
	Schemas     *middleware.SchemaLoader
	Metrics     *observability.Metrics
}

// NewRouter creates the gin engine with all middleware and routes
func NewRouter(cfg *config.Config, svc RouterServices, logger *observability.Logger) *gin.Engine {
	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger))
	router.Use(middleware.RequestID())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			logger.Warn(context.Background(), "Ignoring invalid trusted proxies", map[string]interface{}{"error": err.Error()})
		}
	}

	// HTTP request logging using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
			"http.request_id":  c.GetString(middleware.RequestIDKey),
		}
		if code := c.GetString(middleware.ErrorCodeKey); code != "" {
			fields["http.error_code"] = code
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		// Use appropriate log level based on status code
		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", middleware.APIKeyHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	router.Use(cors.New(corsConfig))

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Health check endpoint (after the security headers, before tracing so health checks stay out of traces)
	started := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(started).Seconds(),
		})
	})

	// OpenTelemetry middleware for HTTP tracing with automatic error attributes
	router.Use(observability.GinMiddlewareWithErrorHandling(cfg.OpenTelemetry.ServiceName)...)

	validate := func(schema string) gin.HandlerFunc {
		return middleware.RequestValidationMiddleware(svc.Schemas, schema, cfg.Upload.MaxSize, logger)
	}
	requireAuth := middleware.RequireAuth(svc.Tokens)
	optionalAuth := middleware.OptionalAuth(svc.Tokens)
	can := middleware.RequireCapability

	// Initialize handlers
	userHandler := NewUserHandler(svc.Users, svc.Tokens, logger)
	feedbackHandler := NewFeedbackHandler(svc.Feedback, logger)
	categoryHandler := NewCategoryHandler(svc.Categories, logger)
	externalHandler := NewExternalHandler(svc.Feedback, logger)
	systemHandler := NewExternalSystemHandler(svc.Systems, svc.CallLogs, logger)
	uploadHandler := NewUploadHandler(svc.Store, cfg.Upload, logger)

	api := router.Group("/api")
	{
		users := api.Group("/users")
		{
			users.POST("/register", validate("UserRegistration"), userHandler.Register)
			users.POST("/login", validate("LoginRequest"), userHandler.Login)
			users.POST("/refresh", validate("RefreshRequest"), userHandler.Refresh)
			users.GET("/profile", requireAuth, can(models.ActionProfileManage), userHandler.GetProfile)
			users.PUT("/profile", requireAuth, can(models.ActionProfileManage), validate("ProfileUpdate"), userHandler.UpdateProfile)
			users.PUT("/password", requireAuth, can(models.ActionProfileManage), validate("PasswordChange"), userHandler.ChangePassword)
			users.GET("", requireAuth, can(models.ActionUserManage), userHandler.ListUsers)
			users.GET("/:id", requireAuth, userHandler.GetUser)
			users.PUT("/:id/status", requireAuth, can(models.ActionUserManage), validate("UserStatusUpdate"), userHandler.SetUserStatus)
		}

		feedback := api.Group("/feedback")
		{
			feedback.GET("", optionalAuth, feedbackHandler.ListFeedback)
			feedback.GET("/stats", requireAuth, can(models.ActionFeedbackRead), feedbackHandler.GetStats)
			feedback.GET("/:id", optionalAuth, feedbackHandler.GetFeedback)
			feedback.POST("", requireAuth, can(models.ActionFeedbackCreate), validate("FeedbackCreate"), feedbackHandler.SubmitFeedback)
			feedback.PUT("/:id", requireAuth, can(models.ActionFeedbackManage), validate("FeedbackUpdate"), feedbackHandler.UpdateFeedback)
			feedback.DELETE("/:id", requireAuth, can(models.ActionFeedbackManage), feedbackHandler.DeleteFeedback)
			feedback.POST("/:id/processing", requireAuth, can(models.ActionFeedbackComment), validate("ProcessingLogCreate"), feedbackHandler.AddProcessing)
			feedback.GET("/:id/processing", requireAuth, can(models.ActionFeedbackRead), feedbackHandler.ListProcessing)
		}

		categories := api.Group("/categories")
		{
			categories.GET("", categoryHandler.ListCategories)
			categories.GET("/tree", categoryHandler.GetTree)
			categories.GET("/:id", categoryHandler.GetCategory)
			categories.POST("", requireAuth, can(models.ActionCategoryManage), validate("CategoryCreate"), categoryHandler.CreateCategory)
			categories.PUT("/:id", requireAuth, can(models.ActionCategoryManage), validate("CategoryUpdate"), categoryHandler.UpdateCategory)
			categories.DELETE("/:id", requireAuth, can(models.ActionCategoryManage), categoryHandler.DeleteCategory)
		}

		// Partner surface: call log first so rejected keys are recorded too
		external := api.Group("/external")
		external.Use(middleware.APICallLogMiddleware(svc.CallLogs, svc.Metrics, logger))
		external.Use(middleware.RequireAPIKey(svc.Systems, logger))
		external.Use(middleware.RateLimitMiddleware(svc.RateLimiter, svc.Metrics, logger))
		{
			external.POST("/feedback/submit", can(models.ActionFeedbackSubmit), validate("ExternalFeedbackSubmit"), externalHandler.Submit)
			external.GET("/feedback/status/:feedbackNo", can(models.ActionFeedbackQuery), externalHandler.GetStatus)
			external.POST("/feedback/batch-status", can(models.ActionFeedbackQuery), validate("BatchStatusRequest"), externalHandler.BatchStatus)
		}

		systems := api.Group("/external-systems")
		systems.Use(requireAuth, can(models.ActionSystemManage))
		{
			systems.GET("", systemHandler.ListSystems)
			systems.POST("", validate("ExternalSystemCreate"), systemHandler.CreateSystem)
			systems.PUT("/:id/status", validate("SystemStatusUpdate"), systemHandler.SetSystemStatus)
			systems.POST("/:id/keys", validate("APIKeyCreate"), systemHandler.IssueKey)
			systems.PUT("/:id/keys/:keyId/disable", systemHandler.DisableKey)
			systems.GET("/:id/call-logs", systemHandler.ListCallLogs)
		}

		api.POST("/upload", requireAuth, can(models.ActionFeedbackCreate), uploadHandler.Upload)
	}

	// Files written by the local blob store
	if local, ok := svc.Store.(*storage.LocalStore); ok {
		router.Static("/uploads", local.Root())
	}

	router.NoRoute(func(c *gin.Context) {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeRouteNotFound,
			contextutils.SeverityInfo,
			fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path),
			"",
		))
	})

	// Automatic route listing
	routeListing := NewRouteListingHandler("feedbackhub")
	routeListing.CollectRoutes(router)
	router.GET("/api", routeListing.GetRouteListingJSON)

	return router
}

// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"feedbackhub/internal/config"
	"feedbackhub/internal/database"
	"feedbackhub/internal/handlers"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	"feedbackhub/internal/storage"
	contextutils "feedbackhub/internal/utils"

	"go.opentelemetry.io/otel"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetFeedbackService() (services.FeedbackServiceInterface, error)
	GetCategoryService() (services.CategoryServiceInterface, error)
	GetExternalSystemService() (services.ExternalSystemServiceInterface, error)
	GetRouterServices() (handlers.RouterServices, error)
	GetSeedService() (*services.SeedService, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Seed(ctx context.Context) (*services.SeedResult, error)
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	metrics       *observability.Metrics
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize opens the database, applies migrations and wires every service
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	return sc.initializeWithDB(ctx, db)
}

// InitializeWithDB wires the services over an already opened pool. Used by the
// admin CLI, which must not migrate implicitly.
func (sc *ServiceContainer) InitializeWithDB(ctx context.Context, db *sql.DB) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	return sc.initializeWithDB(ctx, db)
}

func (sc *ServiceContainer) initializeWithDB(ctx context.Context, db *sql.DB) error {
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}

	// Startup lifecycle services
	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetFeedbackService returns the feedback lifecycle service
func (sc *ServiceContainer) GetFeedbackService() (services.FeedbackServiceInterface, error) {
	return GetServiceAs[services.FeedbackServiceInterface](sc, "feedback")
}

// GetCategoryService returns the category service
func (sc *ServiceContainer) GetCategoryService() (services.CategoryServiceInterface, error) {
	return GetServiceAs[services.CategoryServiceInterface](sc, "category")
}

// GetExternalSystemService returns the external system service
func (sc *ServiceContainer) GetExternalSystemService() (services.ExternalSystemServiceInterface, error) {
	return GetServiceAs[services.ExternalSystemServiceInterface](sc, "external_system")
}

// GetSeedService returns the first-run seed service
func (sc *ServiceContainer) GetSeedService() (*services.SeedService, error) {
	return GetServiceAs[*services.SeedService](sc, "seed")
}

// GetRouterServices collects everything the HTTP router needs
func (sc *ServiceContainer) GetRouterServices() (handlers.RouterServices, error) {
	var rs handlers.RouterServices
	var err error

	if rs.Users, err = sc.GetUserService(); err != nil {
		return rs, err
	}
	if rs.Tokens, err = GetServiceAs[services.TokenServiceInterface](sc, "token"); err != nil {
		return rs, err
	}
	if rs.Feedback, err = sc.GetFeedbackService(); err != nil {
		return rs, err
	}
	if rs.Categories, err = sc.GetCategoryService(); err != nil {
		return rs, err
	}
	if rs.Systems, err = sc.GetExternalSystemService(); err != nil {
		return rs, err
	}
	if rs.CallLogs, err = GetServiceAs[services.APICallLogServiceInterface](sc, "call_log"); err != nil {
		return rs, err
	}
	if rs.RateLimiter, err = GetServiceAs[services.RateLimiterInterface](sc, "rate_limiter"); err != nil {
		return rs, err
	}
	if rs.Store, err = GetServiceAs[storage.BlobStore](sc, "blob_store"); err != nil {
		return rs, err
	}
	if rs.Schemas, err = GetServiceAs[*middleware.SchemaLoader](sc, "schemas"); err != nil {
		return rs, err
	}
	rs.Metrics = sc.metrics
	return rs, nil
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetDatabaseManager returns the manager that owns migrations
func (sc *ServiceContainer) GetDatabaseManager() *database.Manager {
	return sc.dbManager
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
			sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": name})
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			} else {
				sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": name})
			}
		}
	}

	// Shutdown in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	metrics, err := observability.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		// Metrics are optional; instruments stay nil-safe
		sc.logger.Warn(ctx, "Metrics instruments unavailable", map[string]interface{}{"error": err.Error()})
	}
	sc.metrics = metrics

	schemas, err := middleware.LoadEmbeddedSchemas()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to load request schemas")
	}
	sc.services["schemas"] = schemas

	store, err := storage.New(sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize blob store")
	}
	sc.services["blob_store"] = store

	rateLimiter, err := services.NewRateLimiter(sc.cfg.Cache, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize rate limiter")
	}
	sc.services["rate_limiter"] = rateLimiter

	// Email service; doubles as the status-change notifier
	emailService := services.CreateEmailService(sc.cfg, sc.logger, sc.db)
	sc.services["email"] = emailService

	userService := services.NewUserServiceWithLogger(sc.db, sc.logger)
	sc.services["user"] = userService
	sc.services["token"] = services.NewTokenService(sc.cfg.JWT)

	var notifier services.StatusNotifier
	if emailService.IsEnabled() {
		notifier = emailService
	}
	feedbackService := services.NewFeedbackService(sc.db, sc.logger, sc.metrics, notifier)
	sc.services["feedback"] = feedbackService

	categoryService := services.NewCategoryService(sc.db, sc.logger)
	sc.services["category"] = categoryService

	systemService := services.NewExternalSystemService(sc.db, sc.logger)
	sc.services["external_system"] = systemService
	sc.services["call_log"] = services.NewAPICallLogService(sc.db, sc.logger)

	sc.services["seed"] = services.NewSeedService(sc.cfg, sc.logger, systemService, categoryService, userService, feedbackService)
	return nil
}

// Seed brings an empty database to its first-run state
func (sc *ServiceContainer) Seed(ctx context.Context) (*services.SeedResult, error) {
	seed, err := sc.GetSeedService()
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to get seed service")
	}
	return seed.Run(ctx, services.SeedOptions{})
}

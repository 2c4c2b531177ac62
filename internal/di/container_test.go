package di

import (
	"context"
	"testing"

	"feedbackhub/internal/config"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{IsTest: true}
	cfg.JWT.Secret = "container-secret"
	cfg.Upload.LocalDir = t.TempDir()
	cfg.Upload.PublicBaseURL = "/uploads"
	return cfg
}

func TestServiceContainer_InitializeWithDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	sc := NewServiceContainer(testConfig(t), logger)
	require.NoError(t, sc.InitializeWithDB(context.Background(), db))

	rs, err := sc.GetRouterServices()
	require.NoError(t, err)
	assert.NotNil(t, rs.Users)
	assert.NotNil(t, rs.Tokens)
	assert.NotNil(t, rs.Feedback)
	assert.NotNil(t, rs.Categories)
	assert.NotNil(t, rs.Systems)
	assert.NotNil(t, rs.CallLogs)
	assert.NotNil(t, rs.RateLimiter)
	assert.NotNil(t, rs.Schemas)
	// no cloudinary url configured
	assert.IsType(t, &storage.LocalStore{}, rs.Store)

	seed, err := sc.GetSeedService()
	require.NoError(t, err)
	assert.NotNil(t, seed)
	assert.Same(t, db, sc.GetDatabase())

	require.NoError(t, sc.Shutdown(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceContainer_WrongType(t *testing.T) {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	sc := NewServiceContainer(testConfig(t), logger)
	sc.services["user"] = "not a service"

	_, err := sc.GetUserService()
	assert.Error(t, err)

	_, err = sc.GetFeedbackService()
	assert.Error(t, err)
}

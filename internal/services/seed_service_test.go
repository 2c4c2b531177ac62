package services

import (
	"context"
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeedSystems struct {
	ExternalSystemServiceInterface

	exists   bool
	keys     []models.APIKey
	imported []string
	issued   int
}

func (f *fakeSeedSystems) EnsureSystem(_ context.Context, input models.ExternalSystemInput) (*models.ExternalSystem, bool, error) {
	created := !f.exists
	f.exists = true
	return &models.ExternalSystem{ID: 1, Name: input.Name, Permissions: input.Permissions, Status: models.SystemActive}, created, nil
}

func (f *fakeSeedSystems) ImportKey(_ context.Context, systemID int, name, raw string) (*models.APIKey, bool, error) {
	for _, k := range f.imported {
		if k == raw {
			return &models.APIKey{ID: 1, ExternalSystemID: systemID, Name: name}, false, nil
		}
	}
	f.imported = append(f.imported, raw)
	return &models.APIKey{ID: 1, ExternalSystemID: systemID, Name: name}, true, nil
}

func (f *fakeSeedSystems) ListKeys(context.Context, int) ([]models.APIKey, error) {
	return f.keys, nil
}

func (f *fakeSeedSystems) IssueKey(_ context.Context, systemID int, name string, _ *time.Time) (*models.IssuedAPIKey, error) {
	f.issued++
	key := models.APIKey{ID: 10 + f.issued, ExternalSystemID: systemID, Name: name}
	f.keys = append(f.keys, key)
	return &models.IssuedAPIKey{Key: key, RawKey: "fbk_0123456789abcdef0123456789abcdef"}, nil
}

type fakeCategoryDefaults struct{ calls int }

func (f *fakeCategoryDefaults) EnsureDefaults(_ context.Context, names []string) (int, error) {
	f.calls++
	if f.calls > 1 {
		return 0, nil
	}
	return len(names), nil
}

type fakeAdminEnsurer struct{ username string }

func (f *fakeAdminEnsurer) EnsureAdminUserExists(_ context.Context, username, _, _ string) error {
	f.username = username
	return nil
}

type fakeSubmitter struct{ subs []models.FeedbackSubmission }

func (f *fakeSubmitter) Submit(_ context.Context, sub models.FeedbackSubmission, _ models.Actor) (*models.Feedback, error) {
	f.subs = append(f.subs, sub)
	return &models.Feedback{ID: len(f.subs), FeedbackNo: "SEED0" + string(rune('0'+len(f.subs)))}, nil
}

func seedConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Seed.DefaultCategories = true
	cfg.Server.AdminUsername = "admin"
	cfg.Server.AdminPassword = "password123"
	return cfg
}

func TestSeedService_GeneratesKeyOnce(t *testing.T) {
	systems := &fakeSeedSystems{}
	categories := &fakeCategoryDefaults{}
	users := &fakeAdminEnsurer{}
	svc := NewSeedService(seedConfig(), newTestLogger(), systems, categories, users, nil)

	first, err := svc.Run(context.Background(), SeedOptions{})
	require.NoError(t, err)
	assert.True(t, first.SystemCreated)
	assert.True(t, first.APIKeyCreated)
	assert.Equal(t, "fbk_0123456789abcdef0123456789abcdef", first.RawAPIKey)
	assert.Equal(t, 3, first.CategoriesCreated)
	assert.True(t, first.AdminEnsured)
	assert.Equal(t, "admin", users.username)

	second, err := svc.Run(context.Background(), SeedOptions{})
	require.NoError(t, err)
	assert.False(t, second.SystemCreated)
	assert.False(t, second.APIKeyCreated)
	assert.Empty(t, second.RawAPIKey)
	assert.Zero(t, second.CategoriesCreated)
	assert.Equal(t, 1, systems.issued)
}

func TestSeedService_ImportsConfiguredKey(t *testing.T) {
	cfg := seedConfig()
	cfg.Seed.DefaultAPIKey = "fbk_configured"
	cfg.Seed.DefaultCategories = false
	cfg.Server.AdminPassword = ""
	systems := &fakeSeedSystems{}
	categories := &fakeCategoryDefaults{}
	svc := NewSeedService(cfg, newTestLogger(), systems, categories, &fakeAdminEnsurer{}, nil)

	res, err := svc.Run(context.Background(), SeedOptions{})
	require.NoError(t, err)
	assert.True(t, res.APIKeyCreated)
	assert.Empty(t, res.RawAPIKey, "a configured key is never echoed back")
	assert.Equal(t, []string{"fbk_configured"}, systems.imported)
	assert.Zero(t, systems.issued)
	assert.Zero(t, categories.calls)
	assert.False(t, res.AdminEnsured)

	res, err = svc.Run(context.Background(), SeedOptions{})
	require.NoError(t, err)
	assert.False(t, res.APIKeyCreated)
}

func TestSeedService_SampleFeedback(t *testing.T) {
	submitter := &fakeSubmitter{}
	svc := NewSeedService(seedConfig(), newTestLogger(), &fakeSeedSystems{}, nil, nil, submitter)

	res, err := svc.Run(context.Background(), SeedOptions{SampleFeedback: 2})
	require.NoError(t, err)
	require.Len(t, submitter.subs, 2)
	assert.Equal(t, models.ExternalOrigin(1), submitter.subs[0].Origin)
	assert.Equal(t, []string{"SEED01", "SEED02"}, res.SampleFeedback)
}

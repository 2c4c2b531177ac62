package services

import (
	"context"
	"fmt"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"
)

// DefaultSystemName is the external system created on first run
const DefaultSystemName = "default"

// DefaultCategoryNames are the root categories seeded into an empty database
var DefaultCategoryNames = []string{"功能建议", "问题反馈", "其他"}

type categoryDefaults interface {
	EnsureDefaults(ctx context.Context, names []string) (int, error)
}

type adminEnsurer interface {
	EnsureAdminUserExists(ctx context.Context, username, password, email string) error
}

type feedbackSubmitter interface {
	Submit(ctx context.Context, sub models.FeedbackSubmission, actor models.Actor) (*models.Feedback, error)
}

// SeedOptions tunes one seed run
type SeedOptions struct {
	// SampleFeedback submits that many demo items through the default system
	SampleFeedback int
}

// SeedResult reports what a seed run changed
type SeedResult struct {
	SystemCreated     bool
	SystemID          int
	APIKeyCreated     bool
	// RawAPIKey is set only when a key was generated during this run
	RawAPIKey         string
	CategoriesCreated int
	AdminEnsured      bool
	SampleFeedback    []string
}

// SeedService brings an empty database to its first-run state. Every step is
// idempotent.
type SeedService struct {
	cfg        *config.Config
	logger     *observability.Logger
	systems    ExternalSystemServiceInterface
	categories categoryDefaults
	users      adminEnsurer
	feedback   feedbackSubmitter
}

// NewSeedService wires the seed steps to their owning services
func NewSeedService(cfg *config.Config, logger *observability.Logger, systems ExternalSystemServiceInterface,
	categories categoryDefaults, users adminEnsurer, feedback feedbackSubmitter) *SeedService {
	return &SeedService{
		cfg:        cfg,
		logger:     logger,
		systems:    systems,
		categories: categories,
		users:      users,
		feedback:   feedback,
	}
}

// Run applies the seed
func (s *SeedService) Run(ctx context.Context, opts SeedOptions) (result0 *SeedResult, err error) {
	ctx, span := observability.TraceExternalFunction(ctx, "seed")
	defer observability.FinishSpan(span, &err)

	res := &SeedResult{}

	system, created, err := s.systems.EnsureSystem(ctx, models.ExternalSystemInput{
		Name:        DefaultSystemName,
		Permissions: append([]string(nil), models.KnownExternalPermissions...),
	})
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to seed default external system")
	}
	res.SystemCreated = created
	res.SystemID = system.ID

	if err = s.seedKey(ctx, system.ID, res); err != nil {
		return nil, err
	}

	if s.cfg.Seed.DefaultCategories && s.categories != nil {
		if res.CategoriesCreated, err = s.categories.EnsureDefaults(ctx, DefaultCategoryNames); err != nil {
			return nil, contextutils.WrapError(err, "failed to seed categories")
		}
	}

	if s.cfg.Server.AdminUsername != "" && s.cfg.Server.AdminPassword != "" && s.users != nil {
		if err = s.users.EnsureAdminUserExists(ctx, s.cfg.Server.AdminUsername, s.cfg.Server.AdminPassword, s.cfg.Server.AdminEmail); err != nil {
			return nil, err
		}
		res.AdminEnsured = true
	}

	for i := 0; i < opts.SampleFeedback && s.feedback != nil; i++ {
		title := fmt.Sprintf("Sample feedback #%d", i+1)
		fb, err := s.feedback.Submit(ctx, models.FeedbackSubmission{
			Origin:  models.ExternalOrigin(system.ID),
			Title:   &title,
			Content: "Generated by the seed command",
		}, models.SystemActor("seed"))
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to submit sample feedback")
		}
		res.SampleFeedback = append(res.SampleFeedback, fb.FeedbackNo)
	}

	s.logger.Info(ctx, "Seed completed", map[string]interface{}{
		"system_id":          res.SystemID,
		"system_created":     res.SystemCreated,
		"api_key_created":    res.APIKeyCreated,
		"categories_created": res.CategoriesCreated,
		"admin_ensured":      res.AdminEnsured,
		"sample_feedback":    len(res.SampleFeedback),
	})
	return res, nil
}

// seedKey imports the configured key, or issues one when the system has none
func (s *SeedService) seedKey(ctx context.Context, systemID int, res *SeedResult) error {
	if raw := s.cfg.Seed.DefaultAPIKey; raw != "" {
		_, created, err := s.systems.ImportKey(ctx, systemID, "default", raw)
		if err != nil {
			return contextutils.WrapError(err, "failed to import configured api key")
		}
		res.APIKeyCreated = created
		if created {
			s.logger.Info(ctx, "Imported configured API key", map[string]interface{}{
				"system_id": systemID,
				"api_key":   contextutils.MaskAPIKey(raw),
			})
		}
		return nil
	}

	keys, err := s.systems.ListKeys(ctx, systemID)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return nil
	}
	issued, err := s.systems.IssueKey(ctx, systemID, "default", nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to issue default api key")
	}
	res.APIKeyCreated = true
	res.RawAPIKey = issued.RawKey
	s.logger.Info(ctx, "Generated default API key", map[string]interface{}{
		"system_id": systemID,
		"api_key":   contextutils.MaskAPIKey(issued.RawKey),
	})
	return nil
}

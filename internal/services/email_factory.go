package services

import (
	"context"
	"database/sql"

	"feedbackhub/internal/config"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services/mailer"
)

// CreateEmailService creates an appropriate email service based on configuration.
// In test mode it returns a TestEmailService, otherwise the SMTP-backed EmailService.
func CreateEmailService(cfg *config.Config, logger *observability.Logger, db *sql.DB) mailer.Mailer {
	if cfg.IsTest {
		logger.Info(context.Background(), "Using test email service", map[string]interface{}{
			"test_mode": true,
		})
		return NewTestEmailService(cfg, logger)
	}

	return NewEmailService(cfg, logger, db)
}

// Package mailer defines the outbound email contract of the feedback service.
package mailer

import (
	"context"

	"feedbackhub/internal/models"
)

// StatusChangeNotice describes one status transition a submitter is told about
type StatusChangeNotice struct {
	UserID     int
	FeedbackID int
	FeedbackNo string
	From       models.FeedbackStatus
	To         models.FeedbackStatus
	Comment    string
}

// Mailer defines the interface for email sending functionality
type Mailer interface {
	// SendEmail renders templateName with data and sends it to one recipient
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// NotifyStatusChange emails the submitting user about a status transition
	NotifyStatusChange(ctx context.Context, notice StatusChangeNotice) error

	// IsEnabled returns whether email functionality is enabled
	IsEnabled() bool
}

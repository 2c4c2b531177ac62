package services

import (
	"context"
	"sort"
	"sync"

	"feedbackhub/internal/config"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services/mailer"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SentEmail is one message captured by TestEmailService
type SentEmail struct {
	To       string
	Subject  string
	Template string
}

// TestEmailService implements the Mailer interface for test mode. It never
// talks to an SMTP server; it logs each message and keeps it in memory.
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger

	mu      sync.Mutex
	sent    []SentEmail
	notices []StatusChangeNotice
}

var _ mailer.Mailer = (*TestEmailService)(nil)

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// NotifyStatusChange records the notice instead of emailing it
func (e *TestEmailService) NotifyStatusChange(ctx context.Context, notice StatusChangeNotice) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "NotifyStatusChange",
		trace.WithAttributes(
			attribute.Int("user.id", notice.UserID),
			attribute.String("feedback.no", notice.FeedbackNo),
		),
	)
	defer span.End()

	e.mu.Lock()
	e.notices = append(e.notices, notice)
	e.mu.Unlock()

	e.logger.Info(ctx, "TEST MODE: Would send status notification", map[string]interface{}{
		"user_id":     notice.UserID,
		"feedback_no": notice.FeedbackNo,
		"from":        string(notice.From),
		"to":          string(notice.To),
		"test_mode":   true,
	})
	return nil
}

// SendEmail logs and captures the message (test mode)
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer span.End()

	e.mu.Lock()
	e.sent = append(e.sent, SentEmail{To: to, Subject: subject, Template: templateName})
	e.mu.Unlock()

	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"template":  templateName,
		"test_mode": true,
		"data_keys": getMapKeys(data),
	})
	return nil
}

// Sent returns a copy of the captured messages
func (e *TestEmailService) Sent() []SentEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentEmail(nil), e.sent...)
}

// Notices returns a copy of the captured status notices
func (e *TestEmailService) Notices() []StatusChangeNotice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]StatusChangeNotice(nil), e.notices...)
}

// IsEnabled always reports true for the test service
func (e *TestEmailService) IsEnabled() bool {
	return true
}

// getMapKeys returns the sorted keys of a map
func getMapKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

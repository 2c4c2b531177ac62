package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services/mailer"
	contextutils "feedbackhub/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// StatusChangeNotice is re-exported for callers outside the mailer package
type StatusChangeNotice = mailer.StatusChangeNotice

// StatusNotifier is told about status transitions after they commit
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, notice StatusChangeNotice) error
}

// EmailService implements mailer.Mailer using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
	db     *sql.DB
}

var _ mailer.Mailer = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance. db is used to look up
// recipients of status notifications and may be nil for plain SendEmail use.
func NewEmailService(cfg *config.Config, logger *observability.Logger, db *sql.DB) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
		db:     db,
	}
}

// NotifyStatusChange emails the submitting user about a status transition
func (e *EmailService) NotifyStatusChange(ctx context.Context, notice StatusChangeNotice) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "NotifyStatusChange",
		trace.WithAttributes(
			attribute.Int("user.id", notice.UserID),
			attribute.String("feedback.no", notice.FeedbackNo),
			attribute.String("feedback.to_status", string(notice.To)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Debug(ctx, "Email disabled, skipping status notification", map[string]interface{}{
			"user_id":     notice.UserID,
			"feedback_no": notice.FeedbackNo,
		})
		return nil
	}
	if e.db == nil {
		return contextutils.ErrorWithContextf("email service has no database connection")
	}

	var username, email string
	err = e.db.QueryRowContext(ctx, `SELECT username, email FROM users WHERE id = $1`, notice.UserID).Scan(&username, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			e.logger.Warn(ctx, "Submitter no longer exists, skipping status notification", map[string]interface{}{
				"user_id": notice.UserID,
			})
			return nil
		}
		return contextutils.WrapError(err, "failed to look up submitter")
	}

	data := map[string]interface{}{
		"Username":   username,
		"FeedbackNo": notice.FeedbackNo,
		"From":       statusLabel(notice.From),
		"To":         statusLabel(notice.To),
		"Comment":    notice.Comment,
		"AppURL":     e.cfg.Server.AppBaseURL,
	}
	subject := fmt.Sprintf("Your feedback %s is now %s", notice.FeedbackNo, statusLabel(notice.To))

	if err = e.SendEmail(ctx, email, subject, "status_change", data); err != nil {
		return contextutils.WrapError(err, "failed to send status notification")
	}
	return nil
}

func statusLabel(s models.FeedbackStatus) string {
	switch s {
	case models.StatusPending:
		return "pending"
	case models.StatusProcessing:
		return "being processed"
	case models.StatusSolved:
		return "solved"
	case models.StatusRejected:
		return "rejected"
	}
	return strings.ToLower(string(s))
}

// SendEmail sends a generic email with the given parameters
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	content, err := renderEmailTemplate(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}
	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
	})
	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

const emailLayout = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{template "title" .}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1677ff; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .code { font-family: monospace; font-size: 18px; letter-spacing: 2px; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>{{template "title" .}}</h1></div>
        <div class="content">{{template "body" .}}</div>
        <div class="footer"><p>This message was sent by the feedback service. No reply is needed.</p></div>
    </div>
</body>
</html>`

var emailTemplates = map[string]string{
	"status_change": `
{{define "title"}}Feedback update{{end}}
{{define "body"}}
<h2>Hello {{.Username}}!</h2>
<p>Your feedback <span class="code">{{.FeedbackNo}}</span> moved from <strong>{{.From}}</strong> to <strong>{{.To}}</strong>.</p>
{{if .Comment}}<p><strong>Note:</strong> {{.Comment}}</p>{{end}}
{{if .AppURL}}<p><a href="{{.AppURL}}/feedback">View your feedback</a></p>{{end}}
{{end}}`,
	"test_email": `
{{define "title"}}Test Email{{end}}
{{define "body"}}
<h2>Hello {{.Username}}!</h2>
<p>This is a test email to verify that your email settings are working correctly.</p>
<p><strong>Message:</strong> {{.Message}}</p>
{{end}}`,
}

// renderEmailTemplate renders one of the built-in templates inside the shared layout
func renderEmailTemplate(templateName string, data map[string]interface{}) (string, error) {
	body, ok := emailTemplates[templateName]
	if !ok {
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}

	tmpl, err := template.New(templateName).Parse(emailLayout)
	if err == nil {
		_, err = tmpl.Parse(body)
	}
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}
	return buf.String(), nil
}

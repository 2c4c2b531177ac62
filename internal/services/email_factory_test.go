package services

import (
	"testing"

	"feedbackhub/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestCreateEmailService_TestMode(t *testing.T) {
	cfg := &config.Config{IsTest: true}

	service := CreateEmailService(cfg, newTestLogger(), nil)

	assert.IsType(t, &TestEmailService{}, service)
	assert.True(t, service.IsEnabled())
}

func TestCreateEmailService_ProductionMode(t *testing.T) {
	cfg := &config.Config{
		Email: config.EmailConfig{
			Enabled: true,
			SMTP:    config.SMTPConfig{Host: "smtp.example.com"},
		},
	}

	service := CreateEmailService(cfg, newTestLogger(), nil)

	assert.IsType(t, &EmailService{}, service)
	assert.True(t, service.IsEnabled())
}

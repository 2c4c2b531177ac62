package mailer

import (
	"context"
	"testing"

	"feedbackhub/internal/models"

	"github.com/stretchr/testify/assert"
)

// MockMailer implements Mailer for testing
type MockMailer struct {
	SendEmailCalled bool
	Notices         []StatusChangeNotice
	IsEnabledResult bool
}

func (m *MockMailer) SendEmail(_ context.Context, _, _, _ string, _ map[string]interface{}) error {
	m.SendEmailCalled = true
	return nil
}

func (m *MockMailer) NotifyStatusChange(_ context.Context, notice StatusChangeNotice) error {
	m.Notices = append(m.Notices, notice)
	return nil
}

func (m *MockMailer) IsEnabled() bool {
	return m.IsEnabledResult
}

func TestMailerInterface_Implementation(t *testing.T) {
	var _ Mailer = (*MockMailer)(nil)

	mock := &MockMailer{}
	ctx := context.Background()

	err := mock.SendEmail(ctx, "test@example.com", "Test Subject", "test_email", map[string]interface{}{})
	assert.NoError(t, err)
	assert.True(t, mock.SendEmailCalled)

	err = mock.NotifyStatusChange(ctx, StatusChangeNotice{
		UserID:     1,
		FeedbackNo: "AB12CD",
		From:       models.StatusPending,
		To:         models.StatusSolved,
	})
	assert.NoError(t, err)
	assert.Len(t, mock.Notices, 1)
	assert.Equal(t, models.StatusSolved, mock.Notices[0].To)

	assert.False(t, mock.IsEnabled())
	mock.IsEnabledResult = true
	assert.True(t, mock.IsEnabled())
}

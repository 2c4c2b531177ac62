package services

import (
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *TokenService {
	return NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "feedbackhub", AccessTTL: time.Hour})
}

func TestTokenService_IssueAndParse(t *testing.T) {
	svc := newTestTokenService()
	user := &models.User{ID: 7, Username: "alice", Email: "alice@example.com", Role: models.RoleAdmin}

	pair, err := svc.IssuePair(user)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := svc.ParseAccessToken(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "7", claims.Subject)

	refresh, err := svc.ParseRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
}

func TestTokenService_RejectsWrongType(t *testing.T) {
	svc := newTestTokenService()
	pair, err := svc.IssuePair(&models.User{ID: 1, Username: "bob"})
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(pair.RefreshToken)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized))

	_, err = svc.ParseRefreshToken(pair.Token)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized))
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTestTokenService()
	issuedAt := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issuedAt }
	pair, err := svc.IssuePair(&models.User{ID: 1, Username: "bob"})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ParseAccessToken(pair.Token)
	assert.True(t, contextutils.IsError(err, contextutils.ErrTokenExpired))
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	other := NewTokenService(config.JWTConfig{Secret: "other-secret"})
	pair, err := other.IssuePair(&models.User{ID: 1, Username: "bob"})
	require.NoError(t, err)

	_, err = newTestTokenService().ParseAccessToken(pair.Token)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized))
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := TokenClaims{UserID: 1, TokenType: TokenTypeAccess}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokenService().ParseAccessToken(raw)
	assert.Error(t, err)
}

func TestTokenService_IssueRequiresUser(t *testing.T) {
	_, err := newTestTokenService().IssuePair(nil)
	assert.Error(t, err)
	_, err = newTestTokenService().ParseAccessToken("")
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized))
}

package services

import (
	"errors"
	"strconv"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	contextutils "feedbackhub/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims of both access and refresh tokens
type TokenClaims struct {
	UserID    int             `json:"user_id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	TokenType string          `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int64 `json:"expiresIn"`
}

// TokenServiceInterface issues and verifies session tokens
type TokenServiceInterface interface {
	IssuePair(user *models.User) (*TokenPair, error)
	ParseAccessToken(raw string) (*TokenClaims, error)
	ParseRefreshToken(raw string) (*TokenClaims, error)
}

// TokenService signs HS256 tokens with the configured secret
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService from the jwt config section
func NewTokenService(cfg config.JWTConfig) *TokenService {
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = config.DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = config.DefaultRefreshTokenTTL
	}
	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair signs a fresh access/refresh pair for user
func (s *TokenService) IssuePair(user *models.User) (*TokenPair, error) {
	if user == nil || user.ID == 0 {
		return nil, contextutils.ErrorWithContextf("cannot issue tokens without a user")
	}
	access, err := s.sign(user, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *TokenService) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := TokenClaims{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to sign token")
	}
	return signed, nil
}

// ParseAccessToken verifies raw and requires an access token
func (s *TokenService) ParseAccessToken(raw string) (*TokenClaims, error) {
	return s.parse(raw, TokenTypeAccess)
}

// ParseRefreshToken verifies raw and requires a refresh token
func (s *TokenService) ParseRefreshToken(raw string) (*TokenClaims, error) {
	return s.parse(raw, TokenTypeRefresh)
}

func (s *TokenService) parse(raw, wantType string) (*TokenClaims, error) {
	if raw == "" {
		return nil, contextutils.ErrUnauthorized
	}
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTokenExpired,
				contextutils.SeverityInfo, "Token expired", "", err)
		}
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUnauthorized,
			contextutils.SeverityWarn, "Invalid token", "", err)
	}
	if claims.TokenType != wantType || claims.UserID == 0 {
		return nil, contextutils.ErrUnauthorized.WithMessage("Invalid token type")
	}
	return claims, nil
}

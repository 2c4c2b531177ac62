package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"feedbackhub/internal/models"
	"feedbackhub/internal/services"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAPIKeyResolver struct {
	keys            map[string]*models.ResolvedAPIKey
	lastResolved    string
	resolveCalls    int
	updateCallsChan chan int
}

func newMockAPIKeyResolver() *mockAPIKeyResolver {
	return &mockAPIKeyResolver{
		keys:            make(map[string]*models.ResolvedAPIKey),
		updateCallsChan: make(chan int, 4),
	}
}

func (m *mockAPIKeyResolver) add(raw string, systemStatus models.SystemStatus, perms ...string) {
	m.keys[raw] = &models.ResolvedAPIKey{
		Key: models.APIKey{ID: 10 + len(m.keys), ExternalSystemID: 1, Status: models.SystemActive},
		System: models.ExternalSystem{
			ID: 1, Name: "partner", Status: systemStatus, Permissions: perms, RateLimit: 2,
		},
	}
}

func (m *mockAPIKeyResolver) ResolveAPIKey(_ context.Context, raw string) (*models.ResolvedAPIKey, error) {
	m.resolveCalls++
	m.lastResolved = raw
	if strings.TrimSpace(raw) == "" {
		return nil, contextutils.ErrMissingAPIKey
	}
	resolved, ok := m.keys[raw]
	if !ok {
		return nil, contextutils.ErrInvalidAPIKey
	}
	if resolved.Key.Status != models.SystemActive {
		return resolved, contextutils.ErrInvalidAPIKey
	}
	if resolved.System.Status != models.SystemActive {
		return resolved, contextutils.ErrSystemDisabled
	}
	return resolved, nil
}

func (m *mockAPIKeyResolver) TouchLastUsed(_ context.Context, keyID int) error {
	m.updateCallsChan <- keyID
	return nil
}

type recordingCallLog struct {
	mu      sync.Mutex
	entries []*models.APICallLog
	err     error
}

func (r *recordingCallLog) Record(_ context.Context, entry *models.APICallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

// fixedLimiter allows the first n calls
type fixedLimiter struct {
	n     int
	calls int
}

func (f *fixedLimiter) Allow(_ context.Context, _ int, limit int) (services.RateDecision, error) {
	f.calls++
	remaining := f.n - f.calls
	if remaining < 0 {
		remaining = 0
	}
	return services.RateDecision{
		Allowed:   f.calls <= f.n,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(1700000060, 0),
	}, nil
}

func newExternalRouter(resolver *mockAPIKeyResolver, calls *recordingCallLog, limiter services.RateLimiterInterface) *gin.Engine {
	router := newTestRouter()
	external := router.Group("/api/external")
	external.Use(
		APICallLogMiddleware(calls, nil, testLogger()),
		RequireAPIKey(resolver, testLogger()),
		RateLimitMiddleware(limiter, nil, testLogger()),
	)
	external.POST("/feedback/submit", RequireCapability(models.ActionFeedbackSubmit), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})
	external.GET("/feedback/status/:no", RequireCapability(models.ActionFeedbackQuery), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func TestExternalChain_FailureOrder(t *testing.T) {
	resolver := newMockAPIKeyResolver()
	resolver.add("fbk_active", models.SystemActive, models.PermissionFeedbackQuery)
	resolver.add("fbk_disabled", models.SystemDisabled, models.PermissionFeedbackSubmit)
	resolver.add("fbk_revoked", models.SystemActive, models.PermissionFeedbackSubmit)
	resolver.keys["fbk_revoked"].Key.Status = models.SystemDisabled

	tests := []struct {
		name     string
		header   string
		value    string
		status   int
		code     string
		systemID bool
	}{
		{"missing", "", "", http.StatusUnauthorized, "MISSING_API_KEY", false},
		{"unknown", APIKeyHeader, "fbk_unknown", http.StatusUnauthorized, "INVALID_API_KEY", false},
		{"revoked key", APIKeyHeader, "fbk_revoked", http.StatusUnauthorized, "INVALID_API_KEY", true},
		{"disabled system", APIKeyHeader, "fbk_disabled", http.StatusForbidden, "SYSTEM_DISABLED", true},
		{"missing permission", "Authorization", "Bearer fbk_active", http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &recordingCallLog{}
			router := newExternalRouter(resolver, calls, &fixedLimiter{n: 100})

			req := httptest.NewRequest(http.MethodPost, "/api/external/feedback/submit", strings.NewReader(`{}`))
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, w)["code"])

			require.Len(t, calls.entries, 1, "exactly one call log row per request")
			entry := calls.entries[0]
			assert.Equal(t, tt.status, entry.StatusCode)
			assert.Equal(t, tt.code, entry.ErrorCode.String)
			assert.Equal(t, "/api/external/feedback/submit", entry.APIPath)
			assert.Equal(t, http.MethodPost, entry.Method)
			assert.Equal(t, tt.systemID, entry.ExternalSystemID.Valid)
			assert.Equal(t, w.Header().Get(RequestIDHeader), entry.RequestID)
			assert.Regexp(t, `^[0-9a-f-]{36}$`, entry.RequestID)
		})
	}
}

func TestExternalChain_SuccessTouchesKey(t *testing.T) {
	resolver := newMockAPIKeyResolver()
	resolver.add("fbk_active", models.SystemActive, models.PermissionFeedbackQuery)
	calls := &recordingCallLog{}
	router := newExternalRouter(resolver, calls, &fixedLimiter{n: 100})

	req := httptest.NewRequest(http.MethodGet, "/api/external/feedback/status/ABC123", nil)
	req.Header.Set(APIKeyHeader, "fbk_active")
	req.Header.Set("User-Agent", "partner-sdk/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fbk_active", resolver.lastResolved)
	select {
	case keyID := <-resolver.updateCallsChan:
		assert.Equal(t, 10, keyID)
	case <-time.After(time.Second):
		t.Fatal("expected TouchLastUsed to be called")
	}

	require.Len(t, calls.entries, 1)
	entry := calls.entries[0]
	assert.Equal(t, int64(1), entry.ExternalSystemID.Int64)
	assert.Equal(t, int64(10), entry.APIKeyID.Int64)
	assert.False(t, entry.ErrorCode.Valid)
	assert.Equal(t, "partner-sdk/1.0", entry.UserAgent.String)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
}

func TestExternalChain_RateLimited(t *testing.T) {
	resolver := newMockAPIKeyResolver()
	resolver.add("fbk_active", models.SystemActive, models.PermissionFeedbackQuery)
	calls := &recordingCallLog{}
	limiter := &fixedLimiter{n: 1}
	router := newExternalRouter(resolver, calls, limiter)

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/external/feedback/status/ABC123", nil)
		req.Header.Set(APIKeyHeader, "fbk_active")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeEnvelope(t, w)["code"])
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, statuses)
	require.Len(t, calls.entries, 2)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", calls.entries[1].ErrorCode.String)
}

func TestAPICallLogMiddleware_RecordFailureKeepsResponse(t *testing.T) {
	calls := &recordingCallLog{err: errors.New("db down")}
	router := newTestRouter()
	router.GET("/ping", APICallLogMiddleware(calls, nil, testLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Len(t, calls.entries, 1)
}

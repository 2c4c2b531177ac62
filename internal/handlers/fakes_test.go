package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"
	"feedbackhub/internal/storage"
	contextutils "feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// Fakes embed the service interface so unused methods panic if reached.

type fakeUsers struct {
	services.UserServiceInterface
	users    map[int]*models.User
	register func(reg models.UserRegistration) (*models.User, error)
}

func (f *fakeUsers) Register(_ context.Context, reg models.UserRegistration) (*models.User, error) {
	return f.register(reg)
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, contextutils.ErrRecordNotFound.WithMessage("User not found")
}

func (f *fakeUsers) Authenticate(_ context.Context, login, password string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == login && password == "correct-password" {
			if u.Status != models.UserStatusActive {
				return nil, contextutils.ErrAccountDisabled
			}
			return u, nil
		}
	}
	return nil, contextutils.ErrInvalidCredentials
}

type fakeFeedback struct {
	services.FeedbackServiceInterface
	mu          sync.Mutex
	calls       int
	submitted   []models.FeedbackSubmission
	actors      []models.Actor
	lastFilter  models.FeedbackFilter
	statsScope  *int
	byCode      map[string]*models.ExternalStatusView // key: systemID/code
	processings []models.ProcessingInput
}

func (f *fakeFeedback) touch() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeFeedback) Submit(_ context.Context, sub models.FeedbackSubmission, actor models.Actor) (*models.Feedback, error) {
	f.touch()
	f.submitted = append(f.submitted, sub)
	f.actors = append(f.actors, actor)
	fb := &models.Feedback{
		ID:         len(f.submitted),
		FeedbackNo: "AB12CD",
		Content:    sub.Content,
		Status:     models.StatusPending,
		Priority:   models.PriorityNormal,
		MediaTypes: services.AggregateMediaTypes(nil),
		Origin:     sub.Origin,
		ExternalID: models.NullString(sub.ExternalID),
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	return fb, nil
}

func (f *fakeFeedback) List(_ context.Context, filter models.FeedbackFilter) (*models.Page[models.Feedback], error) {
	f.touch()
	f.lastFilter = filter
	return &models.Page[models.Feedback]{
		Pagination: models.NewPagination(filter.Page, filter.PageSize, 21),
	}, nil
}

func (f *fakeFeedback) Stats(_ context.Context, userID *int) (*models.FeedbackStats, error) {
	f.touch()
	f.statsScope = userID
	return &models.FeedbackStats{Total: 1}, nil
}

func (f *fakeFeedback) AddProcessingLog(_ context.Context, id int, input models.ProcessingInput, _ models.Actor) (*models.FeedbackLog, error) {
	f.touch()
	f.processings = append(f.processings, input)
	return &models.FeedbackLog{ID: 1, FeedbackID: id, Action: input.Action}, nil
}

func (f *fakeFeedback) GetExternalStatus(_ context.Context, systemID int, feedbackNo string) (*models.ExternalStatusView, error) {
	f.touch()
	if v, ok := f.byCode[statusKey(systemID, feedbackNo)]; ok {
		return v, nil
	}
	return nil, contextutils.ErrFeedbackNotFound
}

func (f *fakeFeedback) BatchStatus(_ context.Context, systemID int, feedbackNos []string) (*models.BatchStatusResult, error) {
	f.touch()
	result := &models.BatchStatusResult{Items: []models.BatchStatusItem{}, NotFound: []string{}}
	for _, no := range feedbackNos {
		if v, ok := f.byCode[statusKey(systemID, no)]; ok {
			result.Items = append(result.Items, models.BatchStatusItem{FeedbackNo: v.FeedbackNo, Status: v.Status})
		} else {
			result.NotFound = append(result.NotFound, no)
		}
	}
	return result, nil
}

func statusKey(systemID int, code string) string {
	b, _ := json.Marshal([]interface{}{systemID, code})
	return string(b)
}

type fakeCategories struct {
	services.CategoryServiceInterface
}

type fakeSystems struct {
	services.ExternalSystemServiceInterface
	keys map[string]*models.ResolvedAPIKey
}

func (f *fakeSystems) ResolveAPIKey(_ context.Context, raw string) (*models.ResolvedAPIKey, error) {
	resolved, ok := f.keys[raw]
	if !ok {
		return nil, contextutils.ErrInvalidAPIKey
	}
	if resolved.System.Status != models.SystemActive {
		return resolved, contextutils.ErrSystemDisabled
	}
	return resolved, nil
}

func (f *fakeSystems) TouchLastUsed(context.Context, int) error { return nil }

type fakeCallLogs struct {
	services.APICallLogServiceInterface
	mu      sync.Mutex
	entries []*models.APICallLog
}

func (f *fakeCallLogs) Record(_ context.Context, entry *models.APICallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _ int, limit int) (services.RateDecision, error) {
	return services.RateDecision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(time.Minute)}, nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Put(_ context.Context, obj storage.Object) (*storage.StoredObject, error) {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, err
	}
	key := "2024/05/" + obj.FileName
	m.objects[key] = data
	return &storage.StoredObject{Key: key, URL: "https://files.example.com/" + key}, nil
}

// testEnv is a fully wired router over fakes
type testEnv struct {
	router   *gin.Engine
	tokens   *services.TokenService
	users    *fakeUsers
	feedback *fakeFeedback
	systems  *fakeSystems
	callLogs *fakeCallLogs
	store    *memoryStore
}

func partnerKey(systemID int, status models.SystemStatus, perms ...string) *models.ResolvedAPIKey {
	return &models.ResolvedAPIKey{
		Key: models.APIKey{ID: systemID * 10, ExternalSystemID: systemID, Status: models.SystemActive},
		System: models.ExternalSystem{
			ID: systemID, Name: "partner", Status: status, Permissions: perms,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Upload.MaxSize = 1 << 20
	cfg.Upload.AllowedTypes = []string{"image/*", "text/plain"}
	cfg.OpenTelemetry.ServiceName = "feedbackhub-test"

	schemas, err := middleware.LoadEmbeddedSchemas()
	require.NoError(t, err)

	env := &testEnv{
		tokens: services.NewTokenService(config.JWTConfig{Secret: "handler-secret", AccessTTL: time.Hour}),
		users: &fakeUsers{users: map[int]*models.User{
			1: {ID: 1, Username: "alice", Email: "alice@example.com", Role: models.RoleUser, Status: models.UserStatusActive},
			2: {ID: 2, Username: "root", Email: "root@example.com", Role: models.RoleAdmin, Status: models.UserStatusActive},
		}},
		feedback: &fakeFeedback{byCode: map[string]*models.ExternalStatusView{}},
		systems: &fakeSystems{keys: map[string]*models.ResolvedAPIKey{
			"fbk_full":     partnerKey(1, models.SystemActive, models.PermissionFeedbackSubmit, models.PermissionFeedbackQuery),
			"fbk_query":    partnerKey(2, models.SystemActive, models.PermissionFeedbackQuery),
			"fbk_disabled": partnerKey(3, models.SystemDisabled, models.PermissionFeedbackSubmit, models.PermissionFeedbackQuery),
		}},
		callLogs: &fakeCallLogs{},
		store:    &memoryStore{objects: map[string][]byte{}},
	}

	env.router = NewRouter(cfg, RouterServices{
		Users:       env.users,
		Tokens:      env.tokens,
		Feedback:    env.feedback,
		Categories:  &fakeCategories{},
		Systems:     env.systems,
		CallLogs:    env.callLogs,
		RateLimiter: allowAll{},
		Store:       env.store,
		Schemas:     schemas,
	}, observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	gin.SetMode(gin.TestMode)
	return env
}

func (e *testEnv) bearer(t *testing.T, userID int) string {
	t.Helper()
	pair, err := e.tokens.IssuePair(e.users.users[userID])
	require.NoError(t, err)
	return "Bearer " + pair.Token
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var _ http.Handler = (*gin.Engine)(nil)

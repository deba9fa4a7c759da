package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router       *gin.Engine
	users        *mockUserService
	schedules    *mockScheduleService
	topics       *mockTopicService
	quiz         *mockQuizContentService
	progress     *mockProgressService
	leaderboards *mockLeaderboardService
	cfg          *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.SessionSecret = "test-session-secret"
	cfg.Server.WebhookSecret = "test-webhook-secret"
	cfg.Server.AdminSecret = "test-admin-secret"
	cfg.Server.Debug = true
	cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	cfg.Quest.Timezone = "America/New_York"

	env := &testEnv{
		users:        newMockUserService(),
		schedules:    &mockScheduleService{},
		topics:       newMockTopicService(),
		quiz:         &mockQuizContentService{},
		progress:     &mockProgressService{},
		leaderboards: &mockLeaderboardService{},
		cfg:          cfg,
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	env.router = NewRouter(cfg, env.users, env.schedules, env.topics, env.quiz, env.progress, env.leaderboards, logger)
	return env
}

func (e *testEnv) addUser(id int, username string, premium bool) *models.User {
	user := &models.User{ID: id, Username: username, IsPremium: premium}
	e.users.users[id] = user
	e.users.premium[id] = premium
	return user
}

// login opens a session for the given user and returns its cookies.
func (e *testEnv) login(t *testing.T, username string) []*http.Cookie {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": "correct-password"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Result().Cookies()
}

func (e *testEnv) authedRequest(t *testing.T, method, path string, body []byte, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	e.router.ServeHTTP(w, req)
	return w
}

func scheduleFixture() *models.DailySchedule {
	return &models.DailySchedule{
		Date:                  contextutils.BusinessDate("America/New_York"),
		FreeBeginnerID:        "b-1",
		FreeIntermediateID:    "i-1",
		FreeAdvancedID:        "a-1",
		PremiumBeginnerID:     sql.NullString{String: "b-2", Valid: true},
		PremiumIntermediateID: sql.NullString{String: "i-2", Valid: true},
		PremiumAdvancedID:     sql.NullString{String: "a-2", Valid: true},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthStatus_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
}

func TestDailyTopics_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/daily/topics", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDailyTopics_FreeTierSeesThree(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.schedules.schedule = scheduleFixture()
	for _, id := range []string{"b-1", "i-1", "a-1", "b-2", "i-2", "a-2"} {
		env.topics.topics[id] = &models.Topic{ID: id, Title: "T " + id, IsActive: true, Difficulty: models.DifficultyBeginner}
	}

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/topics", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tier   string         `json:"tier"`
		Topics []models.Topic `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "free", resp.Tier)
	assert.Len(t, resp.Topics, 3)
}

func TestDailyTopics_PremiumTierSeesSix(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(2, "bob", true)
	env.schedules.schedule = scheduleFixture()
	for _, id := range []string{"b-1", "i-1", "a-1", "b-2", "i-2", "a-2"} {
		env.topics.topics[id] = &models.Topic{ID: id, Title: "T " + id, IsActive: true, Difficulty: models.DifficultyBeginner}
	}

	cookies := env.login(t, "bob")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/topics", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Tier   string         `json:"tier"`
		Topics []models.Topic `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "premium", resp.Tier)
	assert.Len(t, resp.Topics, 6)
}

func TestDailyQuiz_TopicNotAssignedToday(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.schedules.schedule = scheduleFixture()

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/quiz/not-today", nil, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDailyQuiz_PremiumTopicHiddenFromFreeTier(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.schedules.schedule = scheduleFixture()
	env.quiz.content = &models.QuizContent{}

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/quiz/b-2", nil, cookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDailyQuiz_ReturnsContent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.schedules.schedule = scheduleFixture()
	env.quiz.content = &models.QuizContent{
		Quick: models.MCQ{Question: "Q?", Options: []string{"a", "b", "c", "d"}},
	}

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/quiz/b-1", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"topic_id":"b-1"`)
}

func TestSubmitProgress(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.progress.result = &models.PointsResult{
		PointsGained: 42,
		BasePoints:   30,
		Multiplier:   1.4,
		Streak:       5,
		Persisted:    true,
	}

	cookies := env.login(t, "alice")
	body, _ := json.Marshal(map[string]interface{}{
		"topic_id":   "b-1",
		"quiz_score": 3,
		"quiz_total": 5,
		"completed":  true,
	})
	w := env.authedRequest(t, http.MethodPost, "/v1/daily/progress", body, cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.PointsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 42, result.PointsGained)
	assert.Equal(t, 5, result.Streak)
	assert.True(t, result.Persisted)
}

func TestSubmitProgress_MissingTopic(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)

	cookies := env.login(t, "alice")
	body, _ := json.Marshal(map[string]interface{}{"quiz_total": 5})
	w := env.authedRequest(t, http.MethodPost, "/v1/daily/progress", body, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProgressForDate_BadDate(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/daily/progress/March-1", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatUsage_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.users.chatLimit = 2

	cookies := env.login(t, "alice")
	for i := 0; i < 2; i++ {
		w := env.authedRequest(t, http.MethodPost, "/v1/chat/usage", nil, cookies)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.authedRequest(t, http.MethodPost, "/v1/chat/usage", nil, cookies)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLeaderboardDaily(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)
	env.leaderboards.daily = []*models.LeaderboardEntry{
		{Date: "2025-03-10", UserID: 2, Username: "bob", Points: 120, Rank: 1},
		{Date: "2025-03-10", UserID: 1, Username: "alice", Points: 90, Rank: 2},
	}

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/leaderboard/daily/2025-03-10", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"rank":1`)
}

func TestLeaderboardDaily_BadDate(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)

	cookies := env.login(t, "alice")
	w := env.authedRequest(t, http.MethodGet, "/v1/leaderboard/daily/yesterday", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(models.SubscriptionEvent{Type: "created", UserID: 1, Status: "active"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/subscription", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WebhookSignatureHeader, "wrong")
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_AppliesEvent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(1, "alice", false)

	body, _ := json.Marshal(models.SubscriptionEvent{Type: "created", UserID: 1, Plan: "pro", Status: "active"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/subscription", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WebhookSignatureHeader, "test-webhook-secret")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, env.users.lastEvent)
	assert.Equal(t, "created", env.users.lastEvent.Type)
}

func TestAdmin_RequiresGuard(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/rotate", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_RotateWithSecret(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.schedule = scheduleFixture()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/rotate?force=true", nil)
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"forced":true`)
}

func TestAdmin_RotationWindowClosedMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.rotateErr = contextutils.WrapError(contextutils.ErrRotationWindowClosed, "window closed")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/rotate", nil)
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdmin_GenerateSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.generated = 14

	body, _ := json.Marshal(map[string]string{"start_date": "2025-03-10", "end_date": "2025-03-23"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/schedule/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"days":14`)
}

func TestAdmin_GenerateSchedule_InsufficientTopicsMapsTo400(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.generateErr = contextutils.WrapError(contextutils.ErrInsufficientTopics, "no active topics")

	body, _ := json.Marshal(map[string]string{"start_date": "2025-03-10", "end_date": "2025-03-23"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/schedule/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_ResetUser(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/5/reset", nil)
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{5}, env.progress.resetIDs)
}

func TestAdmin_SnapshotLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	env.leaderboards.snapshotN = 3

	body, _ := json.Marshal(map[string]string{"date": "2025-03-10"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/leaderboard/snapshot", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(config.AdminSecretHeader, "test-admin-secret")
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"ranked":3`)
}

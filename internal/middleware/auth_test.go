package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"questly/internal/config"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestRouter(cfg *config.Config, resolver IdentityResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	router.POST("/login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(UserIDKey, 42)
		session.Set(UsernameKey, "tester")
		_ = session.Save()
		c.Status(http.StatusOK)
	})
	router.GET("/protected", RequireAuth(cfg, resolver), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt(UserIDKey)})
	})
	return router
}

type staticResolver struct {
	userID   int
	username string
	err      error
}

func (r *staticResolver) ResolveIdentity(_ *gin.Context, _, _ string) (int, string, error) {
	return r.userID, r.username, r.err
}

func TestRequireAuth_NoCredentials(t *testing.T) {
	router := newAuthTestRouter(&config.Config{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestRequireAuth_SessionCookie(t *testing.T) {
	router := newAuthTestRouter(&config.Config{}, nil)

	login := httptest.NewRecorder()
	router.ServeHTTP(login, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "42")
}

func signIdentityToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"email": "sub@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequireAuth_BearerToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.IdentitySecret = "identity-secret"
	router := newAuthTestRouter(cfg, &staticResolver{userID: 7, username: "bearer-user"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentityToken(t, "identity-secret", "ext-123"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "7")
}

func TestRequireAuth_BearerTokenWrongSecret(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.IdentitySecret = "identity-secret"
	router := newAuthTestRouter(cfg, &staticResolver{userID: 7, username: "bearer-user"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signIdentityToken(t, "some-other-secret", "ext-123"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type staticAdminChecker struct {
	isAdmin bool
}

func (s *staticAdminChecker) IsAdmin(_ *gin.Context, _ int) (bool, error) {
	return s.isAdmin, nil
}

func newAdminTestRouter(cfg *config.Config, checker AdminChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.POST("/admin/rotate", RequireAdmin(cfg, checker), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireAdmin_SecretHeader(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.AdminSecret = "s3cret"
	router := newAdminTestRouter(cfg, &staticAdminChecker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.Header.Set(config.AdminSecretHeader, "s3cret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin_SchedulerHeader(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.WebhookSecret = "sched-token"
	router := newAdminTestRouter(cfg, &staticAdminChecker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.Header.Set(config.SchedulerHeader, "sched-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin_RejectsWrongSecret(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.AdminSecret = "s3cret"
	cfg.Server.Environment = "production"
	router := newAdminTestRouter(cfg, &staticAdminChecker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	req.Header.Set(config.AdminSecretHeader, "wrong")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin_ProductionIgnoresSession(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Environment = "production"
	router := newAdminTestRouter(cfg, &staticAdminChecker{isAdmin: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/rotate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID_AssignsAndEchoes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	router.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}

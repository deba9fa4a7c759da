package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"questly/internal/config"
	"questly/internal/middleware"
	"questly/internal/observability"
	"questly/internal/services"
	"questly/internal/version"
)

// identityResolver bridges bearer-token subjects to local accounts for the
// auth middleware.
type identityResolver struct {
	userService services.UserServiceInterface
}

func (r *identityResolver) ResolveIdentity(c *gin.Context, externalID, email string) (int, string, error) {
	user, err := r.userService.EnsureUserFromIdentity(c.Request.Context(), externalID, email)
	if err != nil {
		return 0, "", err
	}
	return user.ID, user.Username, nil
}

// adminChecker answers the admin middleware's role question.
type adminChecker struct {
	userService services.UserServiceInterface
}

func (a *adminChecker) IsAdmin(c *gin.Context, userID int) (bool, error) {
	user, err := a.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// NewRouter assembles the gin engine: middleware stack, public daily surface,
// auth, leaderboards, webhook, and the guarded admin surface.
func NewRouter(
	cfg *config.Config,
	userService services.UserServiceInterface,
	scheduleService services.ScheduleServiceInterface,
	topicService services.TopicServiceInterface,
	quizService services.QuizContentServiceInterface,
	progressService services.ProgressServiceInterface,
	leaderboardService services.LeaderboardServiceInterface,
	logger *observability.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Request logging through the observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint, before tracing middleware
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "questly-backend"})
	})

	router.Use(observability.GinMiddlewareWithErrorHandling("questly-backend"))

	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Length", "Content-Type", "Authorization",
		"X-Requested-With", middleware.RequestIDHeader,
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	authHandler := NewAuthHandler(userService, cfg, logger)
	dailyHandler := NewDailyHandler(userService, scheduleService, topicService, quizService, progressService, cfg, logger)
	leaderboardHandler := NewLeaderboardHandler(leaderboardService, cfg, logger)
	webhookHandler := NewWebhookHandler(userService, cfg, logger)
	adminHandler := NewAdminHandler(scheduleService, topicService, progressService, leaderboardService, cfg, logger)

	requireAuth := middleware.RequireAuth(cfg, &identityResolver{userService: userService})
	requireAdmin := middleware.RequireAdmin(cfg, &adminChecker{userService: userService})

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "questly-backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/status", authHandler.Status)
		}

		daily := v1.Group("/daily")
		daily.Use(requireAuth)
		{
			daily.GET("/topics", dailyHandler.GetDailyTopics)
			daily.GET("/quiz/:topicId", dailyHandler.GetDailyQuiz)
			daily.POST("/progress", dailyHandler.SubmitProgress)
			daily.GET("/progress/:date", dailyHandler.GetProgressForDate)
		}

		v1.GET("/points", requireAuth, dailyHandler.GetPoints)
		v1.POST("/chat/usage", requireAuth, dailyHandler.ConsumeChatMessage)

		leaderboard := v1.Group("/leaderboard")
		leaderboard.Use(requireAuth)
		{
			leaderboard.GET("/daily/:date", leaderboardHandler.GetDaily)
			leaderboard.GET("/streaks", leaderboardHandler.GetStreaks)
		}

		v1.POST("/webhooks/subscription", webhookHandler.HandleSubscriptionEvent)

		admin := v1.Group("/admin")
		admin.Use(requireAdmin)
		{
			admin.POST("/rotate", adminHandler.Rotate)
			admin.POST("/schedule/generate", adminHandler.GenerateSchedule)
			admin.POST("/topics/import", adminHandler.ImportTopics)
			admin.POST("/users/:id/reset", adminHandler.ResetUser)
			admin.POST("/leaderboard/snapshot", adminHandler.SnapshotLeaderboard)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}

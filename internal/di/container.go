// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"questly/internal/config"
	"questly/internal/database"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetTopicService() (services.TopicServiceInterface, error)
	GetScheduleService() (services.ScheduleServiceInterface, error)
	GetQuizContentService() (services.QuizContentServiceInterface, error)
	GetProgressService() (services.ProgressServiceInterface, error)
	GetLeaderboardService() (services.LeaderboardServiceInterface, error)
	GetEmailService() (services.EmailServiceInterface, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up the database and all services
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	sc.initializeServices(ctx)

	return nil
}

// GetService retrieves a service by name
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetTopicService returns the topic pool service
func (sc *ServiceContainer) GetTopicService() (services.TopicServiceInterface, error) {
	return GetServiceAs[services.TopicServiceInterface](sc, "topic")
}

// GetScheduleService returns the schedule/rotation service
func (sc *ServiceContainer) GetScheduleService() (services.ScheduleServiceInterface, error) {
	return GetServiceAs[services.ScheduleServiceInterface](sc, "schedule")
}

// GetQuizContentService returns the quiz content service
func (sc *ServiceContainer) GetQuizContentService() (services.QuizContentServiceInterface, error) {
	return GetServiceAs[services.QuizContentServiceInterface](sc, "quiz_content")
}

// GetProgressService returns the progress/points service
func (sc *ServiceContainer) GetProgressService() (services.ProgressServiceInterface, error) {
	return GetServiceAs[services.ProgressServiceInterface](sc, "progress")
}

// GetLeaderboardService returns the leaderboard service
func (sc *ServiceContainer) GetLeaderboardService() (services.LeaderboardServiceInterface, error) {
	return GetServiceAs[services.LeaderboardServiceInterface](sc, "leaderboard")
}

// GetEmailService returns the email service
func (sc *ServiceContainer) GetEmailService() (services.EmailServiceInterface, error) {
	return GetServiceAs[services.EmailServiceInterface](sc, "email")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var errs []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errs)
	}
	return nil
}

// initializeServices wires the service graph
func (sc *ServiceContainer) initializeServices(_ context.Context) {
	userService := services.NewUserService(sc.db, sc.cfg, sc.logger)
	sc.services["user"] = userService

	topicService := services.NewTopicService(sc.db, sc.logger)
	sc.services["topic"] = topicService

	scheduleService := services.NewScheduleService(sc.db, sc.cfg, sc.logger, topicService)
	sc.services["schedule"] = scheduleService

	llmClient := services.NewLLMClient(&sc.cfg.LLM, sc.logger)
	sc.services["llm"] = llmClient

	quizContentService := services.NewQuizContentService(sc.db, sc.cfg, sc.logger, topicService, llmClient)
	sc.services["quiz_content"] = quizContentService

	progressService := services.NewProgressService(sc.db, sc.cfg, sc.logger)
	sc.services["progress"] = progressService

	leaderboardService := services.NewLeaderboardService(sc.db, sc.logger)
	sc.services["leaderboard"] = leaderboardService

	emailService := services.NewEmailService(sc.db, sc.cfg, sc.logger)
	sc.services["email"] = emailService
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword)
}

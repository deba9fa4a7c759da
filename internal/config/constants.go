package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	LLMRequestTimeout     = 2 * time.Minute
	WorkerShutdownTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days

	// Worker timeouts
	WorkerCheckInterval = 60 * time.Second
)

// Default listen ports
const (
	DefaultServerPort = "8080"
	DefaultWorkerPort = "8081"
)

// Quest defaults. Applied when the YAML config leaves a value unset.
const (
	DefaultFreeDailyTopics    = 3
	DefaultPremiumDailyTopics = 6
	DefaultQuizQuestionCount  = 5

	DefaultFreeChatLimit    = 20
	DefaultPremiumChatLimit = 200

	// Rotation window: local hours, inclusive start, exclusive end
	DefaultRotationWindowStart = 0
	DefaultRotationWindowEnd   = 2

	DefaultScheduleHorizonDays = 14
)

// Points engine constants
const (
	BasePointsPerCorrect     = 10
	CompletionBonus          = 50
	CompletionBonusThreshold = 3
	StreakMultiplierStep     = 0.1
	StreakMultiplierCap      = 2.0
)

// Session configuration constants
const (
	// Session settings
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	// Session name
	SessionName = "questly-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)

// Guard headers recognized by admin-scoped endpoints
const (
	AdminSecretHeader = "X-Admin-Secret"
	SchedulerHeader   = "X-Scheduler-Token"
)

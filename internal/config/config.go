// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "questly/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Quest (rotation, points, quotas) configuration
	Quest QuestConfig `json:"quest" yaml:"quest"`

	// LLM content generation configuration
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Email Configuration
	Email EmailConfig `json:"email" yaml:"email"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           string   `json:"port" yaml:"port"`
	WorkerPort     string   `json:"worker_port" yaml:"worker_port"`
	Environment    string   `json:"environment" yaml:"environment"`
	AdminUsername  string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword  string   `json:"admin_password" yaml:"admin_password"`
	AdminSecret    string   `json:"admin_secret" yaml:"admin_secret"`
	SessionSecret  string   `json:"session_secret" yaml:"session_secret"`
	IdentitySecret string   `json:"identity_secret" yaml:"identity_secret"`
	WebhookSecret  string   `json:"webhook_secret" yaml:"webhook_secret"`
	Debug          bool     `json:"debug" yaml:"debug"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	AppBaseURL     string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins"`
}

// IsProduction reports whether the server runs in production mode. The
// admin-session fallback for guarded endpoints is disabled in production.
func (s *ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
	MigrationsPath  string        `json:"migrations_path" yaml:"migrations_path"`
}

// QuestConfig represents rotation, points, and quota configuration
type QuestConfig struct {
	// Timezone anchors all "daily" semantics (business date)
	Timezone string `json:"timezone" yaml:"timezone"`

	// Tier entitlements
	FreeDailyTopics    int `json:"free_daily_topics" yaml:"free_daily_topics"`
	PremiumDailyTopics int `json:"premium_daily_topics" yaml:"premium_daily_topics"`

	// Chat quota per business day
	FreeChatLimit    int `json:"free_chat_limit" yaml:"free_chat_limit"`
	PremiumChatLimit int `json:"premium_chat_limit" yaml:"premium_chat_limit"`

	// Rotation window for unforced cron-triggered rotation (local hours,
	// inclusive start, exclusive end)
	RotationWindowStartHour int `json:"rotation_window_start_hour" yaml:"rotation_window_start_hour"`
	RotationWindowEndHour   int `json:"rotation_window_end_hour" yaml:"rotation_window_end_hour"`

	// ScheduleHorizonDays is the default forward range for bulk schedule generation
	ScheduleHorizonDays int `json:"schedule_horizon_days" yaml:"schedule_horizon_days"`
}

// LLMConfig represents the LLM content provider configuration
type LLMConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	URL         string  `json:"url" yaml:"url"`
	Model       string  `json:"model" yaml:"model"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "questly-backend" or "questly-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// EmailConfig represents email/SMTP configuration
type EmailConfig struct {
	SMTP          SMTPConfig          `json:"smtp" yaml:"smtp"`
	DailyReminder DailyReminderConfig `json:"daily_reminder" yaml:"daily_reminder"`
	Enabled       bool                `json:"enabled" yaml:"enabled"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// DailyReminderConfig represents daily reminder email configuration
type DailyReminderConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Hour    int  `json:"hour" yaml:"hour"` // Local hour of day to send (0-23)
}

// BusinessTimezone returns the configured daily-semantics timezone, defaulting
// to America/New_York.
func (c *Config) BusinessTimezone() string {
	if c.Quest.Timezone != "" {
		return c.Quest.Timezone
	}
	return contextutils.DefaultBusinessTimezone
}

// DailyTopicsForTier returns the number of daily topics a tier is entitled to.
func (c *Config) DailyTopicsForTier(isPremium bool) int {
	if isPremium {
		if c.Quest.PremiumDailyTopics > 0 {
			return c.Quest.PremiumDailyTopics
		}
		return DefaultPremiumDailyTopics
	}
	if c.Quest.FreeDailyTopics > 0 {
		return c.Quest.FreeDailyTopics
	}
	return DefaultFreeDailyTopics
}

// ChatLimitForTier returns the daily chat message quota for a tier.
func (c *Config) ChatLimitForTier(isPremium bool) int {
	if isPremium {
		if c.Quest.PremiumChatLimit > 0 {
			return c.Quest.PremiumChatLimit
		}
		return DefaultPremiumChatLimit
	}
	if c.Quest.FreeChatLimit > 0 {
		return c.Quest.FreeChatLimit
	}
	return DefaultFreeChatLimit
}

// RotationWindow returns the local-hour window for unforced rotation,
// inclusive start and exclusive end.
func (c *Config) RotationWindow() (int, int) {
	start, end := c.Quest.RotationWindowStartHour, c.Quest.RotationWindowEndHour
	if end <= start {
		return DefaultRotationWindowStart, DefaultRotationWindowEnd
	}
	return start, end
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	// Override with environment variables
	config.overrideFromEnv()

	return config, nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		// Convert yaml tag to environment variable name
		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("QUESTLY_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

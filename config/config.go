package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vibecoding/vibe-academy/internal/infrastructure/scheduler"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Component selects which settings Validate insists on.
type Component string

const (
	ComponentAPI       Component = "api"
	ComponentWorker    Component = "worker"
	ComponentAssistant Component = "assistant"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Course        CourseConfig
	Leaderboard   LeaderboardConfig
	Recommender   RecommenderConfig
	Assistant     AssistantConfig
	Scheduler     SchedulerConfig
	Features      *FeatureFlags
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// Timezone for scheduled jobs (default: UTC).
	Timezone string
	Location *time.Location

	ShutdownTimeout time.Duration
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	IdleTimeout        time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	AdminToken         string
	StreamHeartbeat    time.Duration
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

// DatabaseConfig holds PostgreSQL settings. An empty URL outside production
// selects the in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis settings. Redis is optional: caching, the
// distributed event bus and job locks are skipped when it is disabled.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Disabled     bool
}

// CourseConfig selects the course catalog. Empty path means the embedded one.
type CourseConfig struct {
	CatalogPath string

	// ProgressTTL is how long the API serves cached progress before reading
	// storage again.
	ProgressTTL time.Duration
}

// LeaderboardConfig tunes the cached top list.
type LeaderboardConfig struct {
	RefreshInterval    time.Duration
	FetchLimit         int
	CacheTTL           time.Duration
	MinInvalidationGap time.Duration
}

// RecommenderConfig holds the remote recommendation service settings.
type RecommenderConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// AssistantConfig holds the chat assistant client and key store settings.
type AssistantConfig struct {
	BaseURL           string
	Model             string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	CredentialPath    string
	Passphrase        string
}

// SchedulerConfig holds background job settings. Schedules accept
// "@every <duration>", "@hourly", "@daily" or a 5-field cron expression.
type SchedulerConfig struct {
	Enabled             bool
	LeaderboardSchedule string
	ReconcileSchedule   string
	JobTimeout          time.Duration
	LockTTL             time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads an optional .env file, then the environment, and validates the
// result for component. Variables already set in the environment win over
// the file.
func Load(component Component, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		App:           loadAppConfig(),
		HTTP:          loadHTTPConfig(),
		Auth:          loadAuthConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Course: CourseConfig{
			CatalogPath: getEnv("COURSE_CATALOG_PATH", ""),
			ProgressTTL: getEnvDuration("PROGRESS_CACHE_TTL", time.Minute),
		},
		Leaderboard:   loadLeaderboardConfig(),
		Recommender:   loadRecommenderConfig(),
		Assistant:     loadAssistantConfig(),
		Scheduler:     loadSchedulerConfig(),
		Features:      LoadFeatureFlags(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(component); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	timezone := getEnv("APP_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = nil
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "vibe-academy"),
		Environment:     Environment(getEnv("APP_ENV", string(EnvDevelopment))),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 20*time.Second),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:               getEnv("HTTP_HOST", "0.0.0.0"),
		Port:               getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:        getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		AllowedOrigins:     getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("HTTP_RATE_LIMIT_PER_MINUTE", 120),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		StreamHeartbeat:    getEnvDuration("HTTP_STREAM_HEARTBEAT", 15*time.Second),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("JWT_SECRET", ""),
		Issuer:    getEnv("JWT_ISSUER", ""),
		Audience:  getEnv("JWT_AUDIENCE", ""),
		Leeway:    getEnvDuration("JWT_LEEWAY", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		host := getEnv("DB_HOST", "")
		user := getEnv("DB_USER", "")
		if host != "" && user != "" {
			u := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(user, getEnv("DB_PASSWORD", "")),
				Host:     host + ":" + getEnv("DB_PORT", "5432"),
				Path:     "/" + getEnv("DB_NAME", "postgres"),
				RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "require"),
			}
			dsn = u.String()
		}
	}

	return DatabaseConfig{
		URL:             dsn,
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          getEnv("REDIS_URL", ""),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", getEnv("REDIS_URL", "") == ""),
	}
}

func loadLeaderboardConfig() LeaderboardConfig {
	return LeaderboardConfig{
		RefreshInterval:    getEnvDuration("LEADERBOARD_REFRESH_INTERVAL", time.Hour),
		FetchLimit:         getEnvInt("LEADERBOARD_FETCH_LIMIT", 100),
		CacheTTL:           getEnvDuration("LEADERBOARD_CACHE_TTL", time.Hour),
		MinInvalidationGap: getEnvDuration("LEADERBOARD_MIN_INVALIDATION_GAP", 30*time.Second),
	}
}

func loadRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		URL:     getEnv("RECOMMENDER_URL", ""),
		APIKey:  getEnv("RECOMMENDER_API_KEY", ""),
		Timeout: getEnvDuration("RECOMMENDER_TIMEOUT", 10*time.Second),
	}
}

func loadAssistantConfig() AssistantConfig {
	home, err := os.UserConfigDir()
	if err != nil {
		home = "."
	}
	return AssistantConfig{
		BaseURL:           getEnv("ASSISTANT_BASE_URL", "https://api.openai.com"),
		Model:             getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
		MaxTokens:         getEnvInt("ASSISTANT_MAX_TOKENS", 800),
		Timeout:           getEnvDuration("ASSISTANT_TIMEOUT", 30*time.Second),
		RequestsPerSecond: getEnvFloat("ASSISTANT_RPS", 1),
		Burst:             getEnvInt("ASSISTANT_BURST", 3),
		CredentialPath:    getEnv("ASSISTANT_CREDENTIAL_PATH", filepath.Join(home, "vibe-academy", "assistant.key")),
		Passphrase:        getEnv("ASSISTANT_PASSPHRASE", ""),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:             getEnvBool("SCHEDULER_ENABLED", true),
		LeaderboardSchedule: getEnv("SCHEDULER_LEADERBOARD", "@hourly"),
		ReconcileSchedule:   getEnv("SCHEDULER_RECONCILE", "30 3 * * *"),
		JobTimeout:          getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
		LockTTL:             getEnvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate reports every problem at once.
func (c *Config) Validate(component Component) error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV must be development, staging or production, got %q", c.App.Environment))
	}
	if c.App.Location == nil {
		errs = append(errs, fmt.Sprintf("APP_TIMEZONE %q is not a known location", c.App.Timezone))
	}
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be debug, info, warn or error")
	}

	if component == ComponentAPI || component == ComponentWorker {
		if c.IsProduction() && c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required in production")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
		}
		if !c.Redis.Disabled && c.Redis.URL == "" {
			errs = append(errs, "REDIS_URL is required unless REDIS_DISABLED=true")
		}
		if c.Recommender.URL != "" {
			if u, err := url.Parse(c.Recommender.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, "RECOMMENDER_URL must be an http(s) URL")
			}
		}
		if c.Leaderboard.RefreshInterval <= 0 {
			errs = append(errs, "LEADERBOARD_REFRESH_INTERVAL must be positive")
		}
	}

	if component == ComponentAPI && c.Course.ProgressTTL <= 0 {
		errs = append(errs, "PROGRESS_CACHE_TTL must be positive")
	}

	switch component {
	case ComponentAPI:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required")
		} else if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 bytes in production")
		}
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			errs = append(errs, "HTTP_PORT must be 1-65535")
		}
		if c.HTTP.RateLimitPerMinute < 0 {
			errs = append(errs, "HTTP_RATE_LIMIT_PER_MINUTE must not be negative")
		}

	case ComponentWorker:
		if _, err := scheduler.ParseSchedule(c.Scheduler.LeaderboardSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULER_LEADERBOARD: %v", err))
		}
		if _, err := scheduler.ParseSchedule(c.Scheduler.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULER_RECONCILE: %v", err))
		}
		if c.Scheduler.LockTTL < c.Scheduler.JobTimeout {
			errs = append(errs, "SCHEDULER_LOCK_TTL must not be shorter than SCHEDULER_JOB_TIMEOUT")
		}

	case ComponentAssistant:
		if c.Assistant.CredentialPath == "" {
			errs = append(errs, "ASSISTANT_CREDENTIAL_PATH is required")
		}
		if c.Assistant.RequestsPerSecond <= 0 || c.Assistant.Burst <= 0 {
			errs = append(errs, "ASSISTANT_RPS and ASSISTANT_BURST must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// UsesPostgres reports whether a database URL is configured.
func (c *Config) UsesPostgres() bool {
	return c.Database.URL != ""
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

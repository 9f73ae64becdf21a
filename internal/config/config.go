package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backends understood by the server.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Session   SessionConfig
	Cache     CacheConfig
	MongoDB   MongoDBConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
	Env  string
}

// APIConfig points the dashboard at the inventory REST API.
type APIConfig struct {
	BaseURL      string
	AssetBaseURL string
	Timeout      time.Duration
}

// SessionConfig controls where session state lives and how the cookie is issued.
type SessionConfig struct {
	Backend       string
	CookieName    string
	CookieSecure  bool
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// CacheConfig tunes the per-session query cache.
type CacheConfig struct {
	// StaleAfter of zero keeps entries until an explicit refetch.
	StaleAfter    time.Duration
	MaxIdle       time.Duration
	PurgeSchedule string
}

// MongoDBConfig holds settings for the audit journal. An empty URI disables it.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule      string
	Timezone          string
	APIToken          string
	LowStockThreshold int
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	apiTimeout, err := getDuration("API_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	staleAfter, err := getDuration("CACHE_STALE_AFTER", 0)
	if err != nil {
		return nil, err
	}
	maxIdle, err := getDuration("CACHE_MAX_IDLE", time.Hour)
	if err != nil {
		return nil, err
	}
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	lowStock, err := getInt("LOW_STOCK_THRESHOLD", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
			Env:  getenvWithDefault("APP_ENV", "production"),
		},
		API: APIConfig{
			BaseURL:      getenvWithDefault("API_BASE_URL", "http://localhost:8000/api"),
			AssetBaseURL: getenvWithDefault("ASSET_BASE_URL", "http://localhost:8000"),
			Timeout:      apiTimeout,
		},
		Session: SessionConfig{
			Backend:       strings.ToLower(getenvWithDefault("SESSION_BACKEND", SessionBackendMemory)),
			CookieName:    getenvWithDefault("SESSION_COOKIE_NAME", "stockapp_session"),
			CookieSecure:  getBool("SESSION_COOKIE_SECURE", false),
			TTL:           sessionTTL,
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
		},
		Cache: CacheConfig{
			StaleAfter:    staleAfter,
			MaxIdle:       maxIdle,
			PurgeSchedule: getenvWithDefault("CACHE_PURGE_SCHEDULE", "*/15 * * * *"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockapp"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule:      getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			Timezone:          getenvWithDefault("TIMEZONE", "Africa/Conakry"),
			APIToken:          os.Getenv("REPORT_API_TOKEN"),
			LowStockThreshold: lowStock,
		},
		Metrics: MetricsConfig{
			Enabled: getBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.API.BaseURL == "" {
		return errors.New("API_BASE_URL must not be empty")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.API.BaseURL)
	}

	if c.API.AssetBaseURL == "" {
		// Images are stored next to the API by default.
		c.API.AssetBaseURL = c.API.BaseURL
	}

	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Session.RedisAddr == "" {
			return errors.New("REDIS_ADDR must be provided when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q", c.Session.Backend)
	}

	if c.Session.CookieName == "" {
		return errors.New("SESSION_COOKIE_NAME must not be empty")
	}

	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}

	if c.Cache.StaleAfter < 0 {
		return errors.New("CACHE_STALE_AFTER must not be negative")
	}

	if c.Cache.MaxIdle <= 0 {
		return errors.New("CACHE_MAX_IDLE must be positive")
	}

	if c.Reporting.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}

	return nil
}

// SheetsEnabled reports whether the daily snapshot export can run.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.CredentialsPath != "" && c.Sheets.SpreadsheetID != "" && c.Reporting.APIToken != ""
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

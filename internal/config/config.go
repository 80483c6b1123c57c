package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP listener for the dashboard (or the dev API)
	Server ServerConfig

	// Backend API the dashboard talks to
	API APIConfig

	// Durable session cookie
	Cookie CookieConfig

	// Development backend
	DevAPI DevAPIConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port         int
	StateTTL     time.Duration // idle render-state eviction
	SweepEvery   string        // cron schedule for the eviction sweep
	SecureCookie bool
	Debug        bool // show token diagnostics on every page
}

// APIConfig holds backend client configuration
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string // optional initial bearer token
	Retries int
	Backoff time.Duration

	CacheTTL time.Duration // list responses are reused this long per session
}

// CookieConfig holds durable session cookie configuration
type CookieConfig struct {
	Name   string
	Path   string
	MaxAge time.Duration
}

// DevAPIConfig holds development backend configuration
type DevAPIConfig struct {
	Port         int
	DatabaseURL  string
	JWTSecret    string
	TokenTTL     time.Duration
	SeedEmail    string
	SeedPassword string
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

const (
	DefaultAPIBaseURL   = "http://localhost:8000"
	DefaultAPITimeout   = 8 * time.Second
	DefaultAPIRetries   = 1
	DefaultAPIBackoff   = 500 * time.Millisecond
	DefaultAPICacheTTL  = 20 * time.Second
	MaxAPIRetries       = 10
	DefaultCookieName   = "jwt"
	DefaultCookiePath   = "/"
	DefaultCookieMaxAge = 30 * 24 * time.Hour

	DefaultSweepSchedule = "*/10 * * * *"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	port, err := envInt("PORT", 8501)
	if err != nil {
		return nil, err
	}

	stateTTL, err := envDuration("STATE_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	sweep := envString("STATE_SWEEP_SCHEDULE", DefaultSweepSchedule)
	if _, err := cron.ParseStandard(sweep); err != nil {
		return nil, fmt.Errorf("invalid STATE_SWEEP_SCHEDULE %q: %w", sweep, err)
	}

	secure, err := envBool("COOKIE_SECURE", false)
	if err != nil {
		return nil, err
	}

	debug, err := envBool("DASHBOARD_DEBUG", false)
	if err != nil {
		return nil, err
	}

	// API_TIMEOUT is in seconds and may be fractional ("8", "2.5"), or a Go duration
	timeout, err := envSeconds("API_TIMEOUT", DefaultAPITimeout)
	if err != nil {
		return nil, err
	}

	retries, err := envInt("API_RETRIES", DefaultAPIRetries)
	if err != nil {
		return nil, err
	}
	if retries < 0 || retries > MaxAPIRetries {
		return nil, fmt.Errorf("API_RETRIES must be between 0 and %d, got %d", MaxAPIRetries, retries)
	}

	backoff, err := envSeconds("API_BACKOFF", DefaultAPIBackoff)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := envSeconds("API_CACHE_TTL", DefaultAPICacheTTL)
	if err != nil {
		return nil, err
	}

	maxAge, err := envDuration("COOKIE_MAX_AGE", DefaultCookieMaxAge)
	if err != nil {
		return nil, err
	}

	devPort, err := envInt("DEVAPI_PORT", 8000)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := envDuration("DEVAPI_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:         port,
			StateTTL:     stateTTL,
			SweepEvery:   sweep,
			SecureCookie: secure,
			Debug:        debug,
		},
		API: APIConfig{
			BaseURL: envString("API_BASE_URL", DefaultAPIBaseURL),
			Timeout: timeout,
			Token:   os.Getenv("API_TOKEN"),
			Retries: retries,
			Backoff: backoff,

			CacheTTL: cacheTTL,
		},
		Cookie: CookieConfig{
			Name:   envString("COOKIE_NAME", DefaultCookieName),
			Path:   envString("COOKIE_PATH", DefaultCookiePath),
			MaxAge: maxAge,
		},
		DevAPI: DevAPIConfig{
			Port:         devPort,
			DatabaseURL:  envString("DEVAPI_DATABASE_URL", "devapi.sqlite"),
			JWTSecret:    os.Getenv("DEVAPI_JWT_SECRET"),
			TokenTTL:     tokenTTL,
			SeedEmail:    envString("DEVAPI_SEED_EMAIL", "admin@example.com"),
			SeedPassword: envString("DEVAPI_SEED_PASSWORD", "admin"),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}, nil
}

func envString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func envBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive duration", key, value)
	}
	return d, nil
}

// envSeconds accepts either a plain number of seconds or a Go duration string.
func envSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return envDuration(key, defaultValue)
}

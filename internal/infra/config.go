package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	RedisURL       string
	StoragePath    string
	GeoIPDBPath    string
	AllowedOrigins []string

	MusicAPIKey          string
	MusicBaseURL         string
	MusicCallbackURL     string
	MusicPollInterval    time.Duration
	MusicMaxAttempts     int
	MusicFailureStatuses []string

	SearchAPIKey  string
	SearchBaseURL string
	SearchModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	NarrationIdleTimeout time.Duration
	WorkerClaimInterval  time.Duration
	WorkerStaleAfter     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadDotEnv reads .env files when present. Missing files are not an error.
func LoadDotEnv() {
	_ = godotenv.Load(".env", ".env.local")
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		MusicAPIKey:          os.Getenv("MUSIC_API_KEY"),
		MusicBaseURL:         getEnv("MUSIC_BASE_URL", "https://api.sunoapi.org"),
		MusicCallbackURL:     getEnv("MUSIC_CALLBACK_URL", "https://example.com/callback"),
		MusicPollInterval:    getEnvDuration("MUSIC_POLL_INTERVAL", 10*time.Second),
		MusicMaxAttempts:     getEnvInt("MUSIC_MAX_ATTEMPTS", 60),
		MusicFailureStatuses: getEnvList("MUSIC_FAILURE_STATUSES"),

		SearchAPIKey:  os.Getenv("PERPLEXITY_API_KEY"),
		SearchBaseURL: getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
		SearchModel:   getEnv("PERPLEXITY_MODEL", "sonar"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),

		NarrationIdleTimeout: getEnvDuration("NARRATION_IDLE_TIMEOUT", 5*time.Minute),
		WorkerClaimInterval:  getEnvDuration("WORKER_CLAIM_INTERVAL", 5*time.Second),
		WorkerStaleAfter:     getEnvDuration("WORKER_STALE_AFTER", 2*time.Minute),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MusicMaxAttempts <= 0 {
		return nil, fmt.Errorf("MUSIC_MAX_ATTEMPTS must be positive, got %d", cfg.MusicMaxAttempts)
	}
	if cfg.MusicPollInterval <= 0 {
		return nil, fmt.Errorf("MUSIC_POLL_INTERVAL must be positive, got %s", cfg.MusicPollInterval)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") and bare integers as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

var ErrPayPalCredentials = errors.New("PayPal credentials not configured")

type Config struct {
	Port               string
	DBUrl              string
	DBMaxConns         int32
	JWTSecret          string
	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalBaseURL      string
	AppURL             string
	RealtimeBackend    string
	RedisURL           string
	LogLevel           string
	LogFormat          string
	AppEnv             string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("SUPABASE_JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBUrl:              getEnv("DB_URL", ""),
		DBMaxConns:         int32(getEnvInt("DB_MAX_CONNS", 10)),
		JWTSecret:          jwtSecret,
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "session-materials"),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		PayPalClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
		PayPalBaseURL:      strings.TrimRight(getEnv("PAYPAL_BASE_URL", DefaultPayPalBaseURL), "/"),
		AppURL:             strings.TrimRight(getEnv("APP_URL", ""), "/"),
		RealtimeBackend:    normalizeBackend(getEnv("REALTIME_BACKEND", "postgres")),
		RedisURL:           getEnv("REDIS_URL", ""),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
	}

	if cfg.RealtimeBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when REALTIME_BACKEND is redis")
	}

	return cfg, nil
}

// LoadMigrationConfig loads the subset the migration command needs. Unlike
// LoadConfig it does not require auth or provider settings.
func LoadMigrationConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		DBUrl:     strings.TrimSpace(getEnv("DB_URL", "")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		AppEnv:    normalizeEnv(getEnv("APP_ENV", "production")),
	}
	if cfg.DBUrl == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}
	return cfg, nil
}

// RequirePayPal reports a configuration error when the checkout function
// cannot authenticate against the provider.
func (c *Config) RequirePayPal() error {
	if c == nil || c.PayPalClientID == "" || c.PayPalClientSecret == "" {
		return ErrPayPalCredentials
	}
	return nil
}

func (c *Config) StorageEnabled() bool {
	return c != nil && c.SupabaseURL != "" && c.SupabaseBucket != "" && c.SupabaseServiceKey != ""
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeBackend(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "redis":
		return "redis"
	default:
		return "postgres"
	}
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

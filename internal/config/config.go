package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and cache backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Aggregation provider
	PlaidEnv          string
	PlaidBaseURL      string
	PlaidClientID     string
	PlaidSecret       string
	PlaidClientName   string
	PlaidProducts     []string
	PlaidCountryCodes []string
	PlaidLanguage     string

	// HTTP client
	HTTPTimeout         time.Duration
	ProviderCallTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Institution store
	StoreBackend string
	DatabaseURL  string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Cache
	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	LinkTokenTTL  time.Duration

	// Security
	CredentialKey      string // 32 bytes; empty keeps credentials in plaintext (dev only)
	JWTSecret          string
	CORSAllowedOrigins []string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PlaidEnv:          getEnv("PLAID_ENV", "sandbox"),
		PlaidBaseURL:      getEnv("PLAID_BASE_URL", ""),
		PlaidClientID:     getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:       getEnv("PLAID_SECRET", ""),
		PlaidClientName:   getEnv("PLAID_CLIENT_NAME", "Cashy"),
		PlaidProducts:     getEnvList("PLAID_PRODUCTS", []string{"transactions"}),
		PlaidCountryCodes: getEnvList("PLAID_COUNTRY_CODES", []string{"US"}),
		PlaidLanguage:     getEnv("PLAID_LANGUAGE", "en"),

		HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		ProviderCallTimeout: getEnvDuration("PROVIDER_CALL_TIMEOUT", 8*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 16),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", BackendMemory)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LinkTokenTTL:  getEnvDuration("LINK_TOKEN_TTL", 30*time.Minute),

		CredentialKey:      getEnv("CREDENTIAL_KEY", ""),
		JWTSecret:          getEnv("JWT_SECRET", "cashy-default-dev-secret-change-me"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate reports configuration that would fail at wiring time.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.CredentialKey != "" && len(c.CredentialKey) != 32 {
		return fmt.Errorf("CREDENTIAL_KEY must be 32 bytes, got %d", len(c.CredentialKey))
	}

	if c.LinkTokenTTL <= 0 {
		return fmt.Errorf("LINK_TOKEN_TTL must be positive, got %s", c.LinkTokenTTL)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.ProviderCallTimeout < 0 {
		return fmt.Errorf("PROVIDER_CALL_TIMEOUT must not be negative, got %s", c.ProviderCallTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

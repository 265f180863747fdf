package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults;
// Supabase settings may also come from the local settings file.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	CORSOrigins []string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL     time.Duration
	CacheBackend string // memory | redis
	RedisURL     string

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	WebhookSecret      string

	// Storage
	StorageBackend string // supabase | s3
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UseSSL       bool
	S3PublicURL    string

	// Board behaviour
	Timezone      string
	AutosaveDelay time.Duration

	// SettingsFile is the yaml file written by the setup command.
	SettingsFile string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),

		CacheTTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheBackend: getEnv("CACHE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		WebhookSecret:      getEnv("DB_WEBHOOK_SECRET", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "supabase"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Region:       getEnv("S3_REGION", ""),
		S3UseSSL:       getEnv("S3_USE_SSL", "true") == "true",
		S3PublicURL:    getEnv("S3_PUBLIC_URL", ""),

		Timezone:      getEnv("TZ_BOARD", "America/Sao_Paulo"),
		AutosaveDelay: getEnvDuration("AUTOSAVE_DELAY", 600*time.Millisecond),

		SettingsFile: getEnv("SETTINGS_FILE", "bfa-settings.yaml"),
	}
}

// MissingBackend returns the name of the first required Supabase setting
// that is absent, or "". Only presence is checked.
func (c *Config) MissingBackend() string {
	switch {
	case c.SupabaseURL == "":
		return "SUPABASE_URL"
	case c.SupabaseAnonKey == "":
		return "SUPABASE_ANON_KEY"
	case c.SupabaseJWTSecret == "":
		return "SUPABASE_JWT_SECRET"
	}
	return ""
}

// Location returns the board timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

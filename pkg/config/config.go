package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knossos-io/knossos/pkg/observability"
	"github.com/knossos-io/knossos/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Audit configuration
	Audit AuditConfig

	// Rate limit configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// LogAllRequests logs every HTTP request instead of only mutations,
	// errors, and sensitive endpoints.
	LogAllRequests bool

	// RetentionDays is how long audit events are kept before the janitor
	// deletes them.
	RetentionDays int
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int

	// Distributed switches the limiter to the Redis-backed implementation
	// so the limit holds across replicas.
	Distributed bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Audit:         loadAuditConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("KNOSSOS_HOST", "0.0.0.0"),
		Port:            getEnv("KNOSSOS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("KNOSSOS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KNOSSOS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KNOSSOS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KNOSSOS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("KNOSSOS_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("KNOSSOS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("KNOSSOS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("KNOSSOS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("KNOSSOS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("KNOSSOS_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("KNOSSOS_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("KNOSSOS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("KNOSSOS_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogAllRequests: getEnvBool("KNOSSOS_AUDIT_LOG_ALL_REQUESTS", false),
		RetentionDays:  getEnvInt("KNOSSOS_AUDIT_RETENTION_DAYS", 90),
	}
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("KNOSSOS_RATELIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("KNOSSOS_RATELIMIT_RPM", 600),
		Distributed:       getEnvBool("KNOSSOS_RATELIMIT_DISTRIBUTED", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("KNOSSOS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KNOSSOS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KNOSSOS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KNOSSOS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KNOSSOS_OTEL_SERVICE_NAME", "knossos-api"),
		OTelServiceVersion: getEnv("KNOSSOS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KNOSSOS_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be at least one day")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}
	if c.RateLimit.Distributed && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for distributed rate limiting")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

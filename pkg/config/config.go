package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// SSO framework configuration
	SSO SSOConfig

	// Storage configuration
	Storage StorageConfig

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

// SSOConfig holds SSO framework settings
type SSOConfig struct {
	// BaseURL is the externally visible base URL of this service provider
	BaseURL string
	// EntityID identifies this SP in SAML metadata; defaults to BaseURL
	EntityID string
	// KeyDir holds the SAML signing key pair; empty disables signing
	KeyDir string
	// SessionTimeout is the SSO session lifetime
	SessionTimeout time.Duration
	// StateTTL bounds transient login state
	StateTTL time.Duration
	// HTTPTimeout bounds IdP token and userinfo calls
	HTTPTimeout time.Duration
	// DefaultRole applies when no group mapping matches
	DefaultRole string
	// BootstrapFile seeds providers from YAML at startup; empty skips seeding
	BootstrapFile string
	// WatchProviders hot-reloads provider files changed on disk
	WatchProviders bool
	// CleanupInterval is the period of the expired session sweep
	CleanupInterval time.Duration
}

// StorageConfig selects the provider store and transient state backend
type StorageConfig struct {
	// Type is "filesystem" or "sql"
	Type string
	// ProviderDir backs the filesystem store
	ProviderDir string
	// DatabaseDriver is "postgres" or "sqlite3" when Type is "sql"
	DatabaseDriver string
	// DatabaseURL is the driver-specific DSN
	DatabaseURL string
	// RedisURL enables Redis-backed transient login state; empty uses memory
	RedisURL string
	// AuditDir holds the JSON-lines audit trail; empty disables auditing
	AuditDir string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		SSO:           loadSSOConfig(),
		Storage:       loadStorageConfig(),
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
		Host:            getEnv("AUTOBOT_SSO_HOST", "0.0.0.0"),
		Port:            getEnv("AUTOBOT_SSO_PORT", "8080"),
		ReadTimeout:     getEnvDuration("AUTOBOT_SSO_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("AUTOBOT_SSO_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("AUTOBOT_SSO_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("AUTOBOT_SSO_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("AUTOBOT_SSO_HEALTH_PORT", "9090"),
	}
}

// loadSSOConfig loads SSO framework configuration from environment
func loadSSOConfig() SSOConfig {
	return SSOConfig{
		BaseURL:         getEnv("AUTOBOT_SSO_BASE_URL", "http://localhost:8080"),
		EntityID:        getEnv("AUTOBOT_SSO_ENTITY_ID", ""),
		KeyDir:          getEnv("AUTOBOT_SSO_KEY_DIR", "data/keys"),
		SessionTimeout:  getEnvDuration("AUTOBOT_SSO_SESSION_TIMEOUT", 8*time.Hour),
		StateTTL:        getEnvDuration("AUTOBOT_SSO_STATE_TTL", 10*time.Minute),
		HTTPTimeout:     getEnvDuration("AUTOBOT_SSO_HTTP_TIMEOUT", 10*time.Second),
		DefaultRole:     getEnv("AUTOBOT_SSO_DEFAULT_ROLE", "user"),
		BootstrapFile:   getEnv("AUTOBOT_SSO_BOOTSTRAP_FILE", ""),
		WatchProviders:  getEnvBool("AUTOBOT_SSO_WATCH_PROVIDERS", false),
		CleanupInterval: getEnvDuration("AUTOBOT_SSO_CLEANUP_INTERVAL", 5*time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:           getEnv("AUTOBOT_SSO_STORAGE_TYPE", "filesystem"),
		ProviderDir:    getEnv("AUTOBOT_SSO_PROVIDER_DIR", "data/providers"),
		DatabaseDriver: getEnv("AUTOBOT_SSO_DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnv("AUTOBOT_SSO_DATABASE_URL", ""),
		RedisURL:       getEnv("AUTOBOT_SSO_REDIS_URL", ""),
		AuditDir:       getEnv("AUTOBOT_SSO_AUDIT_DIR", "data/audit"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("AUTOBOT_SSO_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("AUTOBOT_SSO_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.SSO.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.ProviderDir == "" {
			return fmt.Errorf("provider directory is required for filesystem storage")
		}
	case "sql":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for sql storage")
		}
		if c.Storage.DatabaseDriver != "postgres" && c.Storage.DatabaseDriver != "sqlite3" {
			return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Storage.DatabaseDriver)
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or sql)", c.Storage.Type)
	}

	if c.SSO.WatchProviders && c.Storage.Type != "filesystem" {
		return fmt.Errorf("provider watching requires filesystem storage")
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

// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	AUTOBOT_SSO_HOST="0.0.0.0"
//	AUTOBOT_SSO_PORT="8080"
//	AUTOBOT_SSO_HEALTH_PORT="9090"
//	AUTOBOT_SSO_READ_TIMEOUT="15s"
//	AUTOBOT_SSO_WRITE_TIMEOUT="15s"
//
// SSO settings:
//
//	AUTOBOT_SSO_BASE_URL="https://sso.example.com"
//	AUTOBOT_SSO_SESSION_TIMEOUT="8h"
//	AUTOBOT_SSO_STATE_TTL="10m"
//	AUTOBOT_SSO_DEFAULT_ROLE="user"
//	AUTOBOT_SSO_BOOTSTRAP_FILE="providers.yaml"
//	AUTOBOT_SSO_WATCH_PROVIDERS="true"
//
// Storage settings:
//
//	AUTOBOT_SSO_STORAGE_TYPE="filesystem"  # filesystem, sql
//	AUTOBOT_SSO_PROVIDER_DIR="data/providers"
//	AUTOBOT_SSO_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	AUTOBOT_SSO_DATABASE_URL="postgres://localhost/autobot?sslmode=disable"
//	AUTOBOT_SSO_REDIS_URL="redis://localhost:6379"
//	AUTOBOT_SSO_AUDIT_DIR="data/audit"
//
// Observability settings:
//
//	AUTOBOT_SSO_LOG_LEVEL="info"  # debug, info, warn, error
//	AUTOBOT_SSO_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//
// # Related Packages
//
//   - pkg/sso: consumes the SSO and storage configuration
//   - pkg/observability: consumes the observability configuration
package config

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "http://localhost:8080", cfg.SSO.BaseURL)
	assert.Equal(t, 8*time.Hour, cfg.SSO.SessionTimeout)
	assert.Equal(t, 10*time.Minute, cfg.SSO.StateTTL)
	assert.Equal(t, "user", cfg.SSO.DefaultRole)
	assert.Equal(t, "filesystem", cfg.Storage.Type)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("AUTOBOT_SSO_PORT", "9999")
	t.Setenv("AUTOBOT_SSO_BASE_URL", "https://sso.corp.example.com")
	t.Setenv("AUTOBOT_SSO_SESSION_TIMEOUT", "2h")
	t.Setenv("AUTOBOT_SSO_LOG_LEVEL", "debug")
	t.Setenv("AUTOBOT_SSO_METRICS_ENABLED", "false")
	t.Setenv("AUTOBOT_SSO_WATCH_PROVIDERS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "https://sso.corp.example.com", cfg.SSO.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.SSO.SessionTimeout)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
	assert.True(t, cfg.SSO.WatchProviders)
}

func TestLoadConfig_SQLStorage(t *testing.T) {
	t.Setenv("AUTOBOT_SSO_STORAGE_TYPE", "sql")
	t.Setenv("AUTOBOT_SSO_DATABASE_URL", "postgres://localhost/autobot?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.Storage.Type)
	assert.Equal(t, "postgres", cfg.Storage.DatabaseDriver)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name:     "same ports",
			env:      map[string]string{"AUTOBOT_SSO_PORT": "8080", "AUTOBOT_SSO_HEALTH_PORT": "8080"},
			errorMsg: "must be different",
		},
		{
			name:     "sql without url",
			env:      map[string]string{"AUTOBOT_SSO_STORAGE_TYPE": "sql"},
			errorMsg: "database URL is required",
		},
		{
			name: "bad driver",
			env: map[string]string{
				"AUTOBOT_SSO_STORAGE_TYPE":    "sql",
				"AUTOBOT_SSO_DATABASE_URL":    "postgres://localhost/x",
				"AUTOBOT_SSO_DATABASE_DRIVER": "oracle",
			},
			errorMsg: "invalid database driver",
		},
		{
			name:     "unknown storage type",
			env:      map[string]string{"AUTOBOT_SSO_STORAGE_TYPE": "s3"},
			errorMsg: "invalid storage type",
		},
		{
			name: "watch requires filesystem",
			env: map[string]string{
				"AUTOBOT_SSO_STORAGE_TYPE":    "sql",
				"AUTOBOT_SSO_DATABASE_URL":    "postgres://localhost/x",
				"AUTOBOT_SSO_WATCH_PROVIDERS": "true",
			},
			errorMsg: "requires filesystem storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.errorMsg)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("ERROR"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("nonsense"))
}

package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/scrypster/p2p/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"P2P_HOST", "P2P_PORT", "P2P_STORAGE_ENGINE", "P2P_DATA_PATH",
		"P2P_POSTGRES_DSN", "P2P_CONNECTION_TYPES", "P2P_LOG_LEVEL",
		"P2P_RATE_LIMIT", "P2P_RATE_BURST", "P2P_BREAKER_MAX_FAILURES",
		"P2P_BREAKER_TIMEOUT", "P2P_ENABLE_METRICS", "P2P_WATCH_TYPES",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "Default host must be 127.0.0.1 for security")
	assert.Equal(t, 6464, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableMetrics)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "", cfg.Types.ConnectionTypesPath)
	assert.False(t, cfg.Types.Watch)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.Equal(t, 5, cfg.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, "127.0.0.1:6464", cfg.Address())
	assert.Equal(t, "data/p2p.db", cfg.DatabasePath())
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("P2P_HOST", "0.0.0.0")
	t.Setenv("P2P_PORT", "8080")
	t.Setenv("P2P_STORAGE_ENGINE", "postgres")
	t.Setenv("P2P_POSTGRES_DSN", "postgres://localhost/p2p?sslmode=disable")
	t.Setenv("P2P_CONNECTION_TYPES", "/etc/p2p/types.yaml")
	t.Setenv("P2P_LOG_LEVEL", "DEBUG")
	t.Setenv("P2P_RATE_LIMIT", "2.5")
	t.Setenv("P2P_RATE_BURST", "5")
	t.Setenv("P2P_BREAKER_MAX_FAILURES", "3")
	t.Setenv("P2P_BREAKER_TIMEOUT", "45")
	t.Setenv("P2P_ENABLE_METRICS", "no")
	t.Setenv("P2P_WATCH_TYPES", "true")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.False(t, cfg.Server.EnableMetrics)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
	assert.Equal(t, "/etc/p2p/types.yaml", cfg.Types.ConnectionTypesPath)
	assert.True(t, cfg.Types.Watch)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, 3, cfg.Breaker.MaxFailures)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Timeout)
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("P2P_PORT", "not-a-port")
	t.Setenv("P2P_BREAKER_TIMEOUT", "soon")
	t.Setenv("P2P_ENABLE_METRICS", "maybe")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6464, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.True(t, cfg.Server.EnableMetrics)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown engine", map[string]string{"P2P_STORAGE_ENGINE": "mysql"}},
		{"postgres without dsn", map[string]string{"P2P_STORAGE_ENGINE": "postgres"}},
		{"port out of range", map[string]string{"P2P_PORT": "70000"}},
		{"negative rate", map[string]string{"P2P_RATE_LIMIT": "-1"}},
		{"watch without types file", map[string]string{"P2P_WATCH_TYPES": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &config.Config{Logging: config.LoggingConfig{Level: in}}
		assert.Equal(t, want, cfg.LogLevel(), in)
	}
}

func TestRedactedDSN(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://p2p:s3cret@db:5432/p2p?sslmode=disable", "postgres://p2p:%5BREDACTED%5D@db:5432/p2p?sslmode=disable"},
		{"postgres://p2p@db/p2p", "postgres://p2p@db/p2p"},
		{"host=db user=p2p password=s3cret dbname=p2p", "host=db user=p2p password=[REDACTED] dbname=p2p"},
		{"", ""},
	}
	for _, tt := range tests {
		cfg := &config.Config{Storage: config.StorageConfig{PostgresDSN: tt.in}}
		assert.Equal(t, tt.want, cfg.RedactedDSN(), tt.in)
	}
}

// Package config provides configuration management for the p2p service.
// It loads settings from environment variables with the P2P_ prefix and
// provides sensible defaults for all configuration options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the p2p service.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Types     TypesConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port          int    // Server port (default: 6464)
	Host          string // Server host (default: 127.0.0.1)
	EnableMetrics bool   // Serve /metrics (default: true)
}

// StorageConfig contains host database configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite or postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Connection string used when StorageEngine is postgres
}

// TypesConfig locates the connection type definitions.
type TypesConfig struct {
	ConnectionTypesPath string // YAML file with connection_types (default: none)
	Watch               bool   // Register types added to the file while serving (default: false)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string // debug, info, warn, error (default: info)
}

// RateLimitConfig throttles the HTTP API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // Sustained rate (default: 20)
	Burst             int     // Burst size (default: 40)
}

// BreakerConfig guards the host query engine.
type BreakerConfig struct {
	MaxFailures int           // Consecutive failures before opening (default: 5)
	Timeout     time.Duration // Open state duration (default: 30s)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the P2P_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvInt("P2P_PORT", 6464),
			Host:          getEnv("P2P_HOST", "127.0.0.1"),
			EnableMetrics: getEnvBool("P2P_ENABLE_METRICS", true),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("P2P_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("P2P_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("P2P_POSTGRES_DSN", ""),
		},
		Types: TypesConfig{
			ConnectionTypesPath: getEnv("P2P_CONNECTION_TYPES", ""),
			Watch:               getEnvBool("P2P_WATCH_TYPES", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("P2P_LOG_LEVEL", "info"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("P2P_RATE_LIMIT", 20),
			Burst:             getEnvInt("P2P_RATE_BURST", 40),
		},
		Breaker: BreakerConfig{
			MaxFailures: getEnvInt("P2P_BREAKER_MAX_FAILURES", 5),
			Timeout:     getEnvDuration("P2P_BREAKER_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that can't be defaulted.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("P2P_POSTGRES_DSN is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.StorageEngine))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Types.Watch && c.Types.ConnectionTypesPath == "" {
		errs = append(errs, errors.New("P2P_WATCH_TYPES requires P2P_CONNECTION_TYPES"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid rate limit %v", c.RateLimit.RequestsPerSecond))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DatabasePath returns the SQLite database file inside DataPath.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataPath, "p2p.db")
}

var dsnPassword = regexp.MustCompile(`(password\s*=\s*)\S+`)

// RedactedDSN returns PostgresDSN with any password replaced by [REDACTED],
// for logging. Both URL and key=value forms are handled.
func (c *Config) RedactedDSN() string {
	dsn := c.Storage.PostgresDSN
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "[REDACTED]")
				return u.String()
			}
		}
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}[REDACTED]")
}

// LogLevel parses Logging.Level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") and bare seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

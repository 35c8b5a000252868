// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Retention RetentionConfig
	Storage   StorageConfig
	Report    ReportConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the record store: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string or SQLite file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MigrateOnStart applies pending migrations when the server starts (default: true)
	MigrateOnStart bool `env:"DB_MIGRATE_ON_START" default:"true"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 25MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Required rejects requests without a valid token (default: true)
	Required bool `env:"AUTH_REQUIRED" default:"true"`

	// JWTSecret is the HS256 signing key for access tokens
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// TokenTTL is the lifetime of tokens minted by the admin CLI (default: 24h)
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`

	// DefaultUserID is used when Required is false and no token is sent (default: 1)
	DefaultUserID int64 `env:"AUTH_DEFAULT_USER_ID" default:"1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig holds per-user dataset retention settings.
type RetentionConfig struct {
	// Keep is the number of most recent datasets kept per user (default: 5)
	Keep int `env:"RETENTION_KEEP" default:"5"`

	// SweepInterval is how often the maintenance sweep re-applies retention.
	// Zero disables the sweep (default: 0s)
	SweepInterval time.Duration `env:"RETENTION_SWEEP_INTERVAL" default:"0s"`
}

// StorageConfig holds raw CSV storage settings.
type StorageConfig struct {
	// Backend is where raw uploads are copied: local, gcs or none (default: local)
	Backend string `env:"RAW_STORAGE_BACKEND" default:"local"`

	// LocalDir is the media root for the local backend (default: ./media)
	LocalDir string `env:"RAW_STORAGE_DIR" default:"./media"`

	// GCSBucket is the bucket name for the gcs backend
	GCSBucket string `env:"RAW_STORAGE_GCS_BUCKET"`

	// GCSPrefix is prepended to object names in the bucket
	GCSPrefix string `env:"RAW_STORAGE_GCS_PREFIX"`

	// EmulatorHost points the gcs backend at a storage emulator without auth
	EmulatorHost string `env:"STORAGE_EMULATOR_HOST"`

	// Timeout bounds a single raw storage call (default: 30s)
	Timeout time.Duration `env:"RAW_STORAGE_TIMEOUT" default:"30s"`
}

// ReportConfig holds PDF report rendering settings.
type ReportConfig struct {
	// FontPath is an optional TrueType font for chart labels.
	// The built-in bitmap font is used when empty.
	FontPath string `env:"REPORT_FONT_PATH"`

	// ChartWidth is the pixel width of rendered charts (default: 1200)
	ChartWidth int `env:"REPORT_CHART_WIDTH" default:"1200"`

	// ChartHeight is the pixel height of rendered charts (default: 720)
	ChartHeight int `env:"REPORT_CHART_HEIGHT" default:"720"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

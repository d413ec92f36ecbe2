// Package config provides centralized configuration management for the importer.
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
	Import    ImportConfig
	Media     MediaConfig
	Storage   StorageConfig
	Retention RetentionConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// import drivers to reach a row boundary (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates the importer tables on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the maximum upload size (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20MB" unit:"bytes"`

	// MaxConcurrent is the number of imports that may run at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a new import waits for a free slot (default: 5s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"5s"`

	// RowDelay is the pause between rows (default: 100ms)
	RowDelay time.Duration `env:"IMPORT_ROW_DELAY" default:"100ms"`

	// PollInterval is how often a paused driver re-reads its session (default: 1s)
	PollInterval time.Duration `env:"IMPORT_POLL_INTERVAL" default:"1s"`

	// PersistSessions writes session snapshots to Postgres after every row
	// and resumes unfinished sessions on startup (default: false)
	PersistSessions bool `env:"IMPORT_PERSIST_SESSIONS" default:"false"`
}

// MediaConfig holds image download settings.
type MediaConfig struct {
	// Enabled allows sessions to download images at all (default: true)
	Enabled bool `env:"MEDIA_DOWNLOAD_ENABLED" default:"true"`

	Timeout     time.Duration `env:"MEDIA_TIMEOUT" default:"20s"`
	MaxSize     int64         `env:"MEDIA_MAX_SIZE" default:"10MB" unit:"bytes"`
	Concurrency int           `env:"MEDIA_CONCURRENCY" default:"4"`
	UserAgent   string        `env:"MEDIA_USER_AGENT" default:"dirlisting-importer/1.0"`
}

// StorageConfig selects and configures the image store.
type StorageConfig struct {
	// Backend is "fs" or "s3" (default: fs)
	Backend string `env:"STORAGE_BACKEND" default:"fs"`

	// FSRoot is the directory images are written to when Backend is fs
	FSRoot string `env:"STORAGE_FS_ROOT" default:"./data/media"`

	// PublicBaseURL prefixes stored keys to form the recorded image location
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" default:"/media"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envAlt:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" default:"false"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3MaxRetries      int    `env:"S3_MAX_RETRIES" default:"3"`
}

// RetentionConfig controls removal of finished sessions.
type RetentionConfig struct {
	// MaxAge after which finished sessions are dropped; 0 keeps them forever
	MaxAge time.Duration `env:"RETENTION_MAX_AGE" default:"0s"`

	// CheckInterval is how often the sweep runs (default: 1h)
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"1h"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the import API with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// RateLimit is the number of API requests allowed per client per
	// RateWindow; 0 disables limiting (default: 100 per minute)
	RateLimit  int           `env:"API_RATE_LIMIT" default:"100"`
	RateWindow time.Duration `env:"API_RATE_WINDOW" default:"1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

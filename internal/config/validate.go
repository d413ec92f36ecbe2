package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Import.validate(&p)
	if c.Media.Enabled {
		c.Media.validate(&p)
		c.Storage.validate(&p)
	}
	c.Retention.validate(&p)
	c.Security.validate(&p)
	c.Logging.validate(&p)
	c.Metrics.validate(&p)

	return p.err()
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.New("invalid settings:\n  - " + strings.Join(p, "\n  - "))
}

func (s *ServerConfig) validate(p *problems) {
	if s.Port <= 0 || s.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
}

func (d *DatabaseConfig) validate(p *problems) {
	if d.URL == "" {
		p.addf("DATABASE_URL is required")
	}
	if d.MinConns < 0 {
		p.addf("DB_MIN_CONNS must be non-negative")
	}
	if d.MaxConns <= 0 || d.MaxConns < d.MinConns {
		p.addf("DB_MAX_CONNS (%d) must be positive and >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
	}
}

func (i *ImportConfig) validate(p *problems) {
	if i.MaxFileSize <= 0 {
		p.addf("IMPORT_MAX_FILE_SIZE must be positive")
	}
	if i.MaxConcurrent <= 0 {
		p.addf("IMPORT_MAX_CONCURRENT must be positive")
	}
	if i.MaxWaitTime <= 0 {
		p.addf("IMPORT_MAX_WAIT_TIME must be positive")
	}
	if i.RowDelay < 0 {
		p.addf("IMPORT_ROW_DELAY must be non-negative")
	}
	// The poll interval bounds how late a paused driver notices a status
	// change written outside the service.
	if i.PollInterval <= 0 {
		p.addf("IMPORT_POLL_INTERVAL must be positive")
	}
}

func (m *MediaConfig) validate(p *problems) {
	if m.Timeout <= 0 {
		p.addf("MEDIA_TIMEOUT must be positive")
	}
	if m.MaxSize <= 0 {
		p.addf("MEDIA_MAX_SIZE must be positive")
	}
	if m.Concurrency <= 0 {
		p.addf("MEDIA_CONCURRENCY must be positive")
	}
}

func (s *StorageConfig) validate(p *problems) {
	switch strings.ToLower(s.Backend) {
	case "fs":
		if s.FSRoot == "" {
			p.addf("STORAGE_FS_ROOT is required when STORAGE_BACKEND=fs")
		}
	case "s3":
		if s.S3Bucket == "" {
			p.addf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
		if (s.S3AccessKeyID == "") != (s.S3SecretAccessKey == "") {
			p.addf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
		if s.S3MaxRetries < 0 {
			p.addf("S3_MAX_RETRIES must be non-negative")
		}
	default:
		p.addf("STORAGE_BACKEND (%q) must be fs or s3", s.Backend)
	}
}

func (r *RetentionConfig) validate(p *problems) {
	if r.MaxAge < 0 {
		p.addf("RETENTION_MAX_AGE must be non-negative")
	}
	if r.MaxAge > 0 && r.CheckInterval <= 0 {
		p.addf("RETENTION_CHECK_INTERVAL must be positive when retention is enabled")
	}
}

func (s *SecurityConfig) validate(p *problems) {
	if s.RequireAPIKey && len(s.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY is set but API_KEYS is empty")
	}
	if s.RateLimit < 0 {
		p.addf("API_RATE_LIMIT must be non-negative")
	}
	if s.RateLimit > 0 && s.RateWindow <= 0 {
		p.addf("API_RATE_WINDOW must be positive when API_RATE_LIMIT is set")
	}
}

func (l *LoggingConfig) validate(p *problems) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be debug, info, warn or error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be text or json", l.Format)
	}
}

func (m *MetricsConfig) validate(p *problems) {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		p.addf("METRICS_PATH (%q) must start with /", m.Path)
	}
}

// String renders the configuration for logs with credentials masked.
func (c *Config) String() string {
	secret := func(s string) string {
		if s == "" {
			return ""
		}
		return "[MASKED]"
	}
	return fmt.Sprintf(
		"Config{Server:{Addr:%q} Database:{URL:%s MaxConns:%d MinConns:%d} "+
			"Import:{MaxConcurrent:%d RowDelay:%s Poll:%s Persist:%t} "+
			"Media:{Enabled:%t Concurrency:%d MaxSize:%d} "+
			"Storage:{Backend:%q Bucket:%q Endpoint:%q Secret:%s} "+
			"Retention:{MaxAge:%s} Security:{RequireAPIKey:%t Keys:%d} "+
			"Logging:{Level:%q Format:%q}}",
		c.Server.Addr(), secret(c.Database.URL), c.Database.MaxConns, c.Database.MinConns,
		c.Import.MaxConcurrent, c.Import.RowDelay, c.Import.PollInterval, c.Import.PersistSessions,
		c.Media.Enabled, c.Media.Concurrency, c.Media.MaxSize,
		c.Storage.Backend, c.Storage.S3Bucket, c.Storage.S3Endpoint, secret(c.Storage.S3SecretAccessKey),
		c.Retention.MaxAge, c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format,
	)
}

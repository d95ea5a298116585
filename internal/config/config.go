package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Download  DownloadConfig  `yaml:"download"`
	Transcode TranscodeConfig `yaml:"transcode"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8642"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds the Postgres connection settings for the links table.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn" envconfig:"DATABASE_URL"`
	MaxOpenConns int           `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" envconfig:"DB_CONN_LIFETIME" default:"30m"`
}

// StorageConfig holds S3 object storage configuration.
type StorageConfig struct {
	Region        string `yaml:"region" envconfig:"S3_REGION" default:"us-east-1"`
	Bucket        string `yaml:"bucket" envconfig:"S3_BUCKET"`
	Endpoint      string `yaml:"endpoint" envconfig:"S3_ENDPOINT"` // custom endpoint for MinIO/R2
	PublicBaseURL string `yaml:"public_base_url" envconfig:"S3_PUBLIC_BASE_URL"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (compatible; GifStash/1.0)"`
	Referer       string        `yaml:"referer" envconfig:"DOWNLOAD_REFERER" default:"https://twitter.com/"`
	MaxBytes      int64         `yaml:"max_bytes" envconfig:"DOWNLOAD_MAX_BYTES"` // 0 = derived from transcode mode
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"5s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"60s"`
}

// TranscodeConfig holds MP4 to GIF transcoding configuration.
type TranscodeConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"TRANSCODE_ENABLED" default:"false"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TRANSCODE_TIMEOUT" default:"60s"`
	MaxOutputBytes int64         `yaml:"max_output_bytes" envconfig:"TRANSCODE_MAX_OUTPUT_BYTES" default:"8388608"` // 8MB
	FPS            int           `yaml:"fps" envconfig:"TRANSCODE_FPS" default:"15"`
	MaxWidth       int           `yaml:"max_width" envconfig:"TRANSCODE_MAX_WIDTH" default:"480"`
	TempDir        string        `yaml:"temp_dir" envconfig:"TRANSCODE_TEMP_DIR"` // empty = os.TempDir
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	Backend       string        `yaml:"backend" envconfig:"RATE_LIMIT_BACKEND" default:"memory"` // memory | redis
	RedisAddr     string        `yaml:"redis_addr" envconfig:"RATE_LIMIT_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" envconfig:"RATE_LIMIT_REDIS_PASSWORD"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"5m"`
}

// AuditConfig holds audit log configuration.
type AuditConfig struct {
	BufferSize    int    `yaml:"buffer_size" envconfig:"AUDIT_BUFFER_SIZE" default:"1000"`
	SQLitePath    string `yaml:"sqlite_path" envconfig:"AUDIT_SQLITE_PATH"` // empty = in-memory only
	RetentionDays int    `yaml:"retention_days" envconfig:"AUDIT_RETENTION_DAYS" default:"30"`
}

// WorkerConfig holds ingestion worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"1"`
}

const (
	// directMP4MaxBytes is the download ceiling when storing MP4s as-is.
	directMP4MaxBytes = 15 * 1024 * 1024
	// transcodeMaxBytes is the larger input ceiling when re-encoding to
	// GIF afterward.
	transcodeMaxBytes = 50 * 1024 * 1024
)

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Download.MaxBytes == 0 {
		if cfg.Transcode.Enabled {
			cfg.Download.MaxBytes = transcodeMaxBytes
		} else {
			cfg.Download.MaxBytes = directMP4MaxBytes
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return fmt.Errorf("rate limit backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.RedisAddr == "" {
		return fmt.Errorf("RATE_LIMIT_REDIS_ADDR is required for the redis backend")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

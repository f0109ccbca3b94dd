// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/videogen/internal/storage"
)

// placeholderKey is the sample API key value shipped in env templates.
const placeholderKey = "your_veo3_api_key"

// Config holds all configuration for the proxy server and the CLI client.
// Nothing is required: a proxy without keys still serves requests that carry
// their own token, and a client without a proxy URL talks to localhost.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Upstream settings
	UpstreamBaseURL string  `env:"UPSTREAM_BASE_URL, default=https://yunwu.ai/v1" json:"upstream_base_url"`
	Veo3APIKey      string  `env:"VEO3_API_KEY" json:"-"`  // Masked in JSON
	Sora2APIKey     string  `env:"SORA2_API_KEY" json:"-"` // Masked in JSON
	UpstreamRPS     float64 `env:"UPSTREAM_RPS, default=5" json:"upstream_rps"`
	UpstreamBurst   int     `env:"UPSTREAM_BURST, default=10" json:"upstream_burst"`

	// Client settings
	ProxyURL       string        `env:"PROXY_URL, default=http://localhost:8080" json:"proxy_url"`
	DataDir        string        `env:"DATA_DIR" json:"data_dir,omitempty"`
	PollInterval   time.Duration `env:"POLL_INTERVAL, default=60s" json:"poll_interval"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=30s" json:"request_timeout"`

	// Media settings
	TempDir       string `env:"TEMP_DIR, default=/tmp/videogen" json:"temp_dir"`
	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ImageMaxBytes int    `env:"IMAGE_MAX_BYTES, default=2097152" json:"image_max_bytes"`

	// Optional S3 settings for hosting first-frame images
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=first-frames" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// S3 returns the image host configuration.
func (c *Config) S3() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		PublicBaseURL:   c.S3PublicBaseURL,
		Prefix:          c.S3Prefix,
	}
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3().Enabled()
}

// KeyConfigured reports whether key looks like a real API key.
func KeyConfigured(key string) bool {
	return len(key) >= 16 && key != placeholderKey
}

// DataPath returns the directory of the client's persistent store. It
// defaults to "videogen" under the user config directory.
func (c *Config) DataPath() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve data directory: %w", err)
	}
	return filepath.Join(base, "videogen"), nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w. The CLI logs to stderr so its
// stdout stays machine-readable.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, UpstreamBaseURL: %s, Veo3APIKey: %s, Sora2APIKey: %s, ProxyURL: %s, DataDir: %s, PollInterval: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.UpstreamBaseURL,
		mask(c.Veo3APIKey),
		mask(c.Sora2APIKey),
		c.ProxyURL,
		c.DataDir,
		c.PollInterval,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MobileUserAgent is the fixed iPhone Safari UA used for extraction and CDN fetches.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 " +
	"Mobile/15E148 Safari/604.1"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	APIKey          string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"` // streams can run long
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// ExtractorConfig holds yt-dlp configuration.
type ExtractorConfig struct {
	BinaryPath         string        `yaml:"binary_path" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"EXTRACTOR_TIMEOUT" default:"60s"`
	UserAgent          string        `yaml:"user_agent" envconfig:"EXTRACTOR_USER_AGENT"`
	NoCheckCertificate bool          `yaml:"no_check_certificate" envconfig:"EXTRACTOR_NO_CHECK_CERTIFICATE" default:"true"`
	Proxy              string        `yaml:"proxy" envconfig:"EXTRACTOR_PROXY"`
	CookiesFile        string        `yaml:"cookies_file" envconfig:"EXTRACTOR_COOKIES_FILE"` // local debugging only
	MaxConcurrent      int           `yaml:"max_concurrent" envconfig:"EXTRACTOR_MAX_CONCURRENT" default:"4"`
}

// RelayConfig holds CDN streaming configuration.
type RelayConfig struct {
	Timeout      time.Duration `yaml:"timeout" envconfig:"RELAY_TIMEOUT" default:"30s"`
	ChunkSize    int           `yaml:"chunk_size" envconfig:"RELAY_CHUNK_SIZE" default:"8192"`
	Referer      string        `yaml:"referer" envconfig:"RELAY_REFERER" default:"https://www.tiktok.com/"`
	OpenAttempts uint          `yaml:"open_attempts" envconfig:"RELAY_OPEN_ATTEMPTS" default:"2"`
	RetryDelay   time.Duration `yaml:"retry_delay" envconfig:"RELAY_RETRY_DELAY" default:"250ms"`
	MaxRedirects int           `yaml:"max_redirects" envconfig:"RELAY_MAX_REDIRECTS" default:"10"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"LOG_MAX_AGE_DAYS" default:"7"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Fields carrying a default
// tag always end up with the environment value or that default, so the
// file only takes effect for fields without one (api_key, proxy,
// user_agent, cookies_file, log file).
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Extractor.UserAgent == "" {
		cfg.Extractor.UserAgent = MobileUserAgent
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Extractor.BinaryPath == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if c.Extractor.Timeout <= 0 {
		return fmt.Errorf("EXTRACTOR_TIMEOUT must be positive")
	}
	if c.Extractor.MaxConcurrent < 1 {
		return fmt.Errorf("EXTRACTOR_MAX_CONCURRENT must be at least 1")
	}
	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("RELAY_TIMEOUT must be positive")
	}
	if c.Relay.ChunkSize <= 0 {
		return fmt.Errorf("RELAY_CHUNK_SIZE must be positive")
	}
	if c.Relay.OpenAttempts < 1 {
		return fmt.Errorf("RELAY_OPEN_ATTEMPTS must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog level.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

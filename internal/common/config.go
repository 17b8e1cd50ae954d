package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment" validate:"oneof=development testing staging production"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Queue       QueueConfig      `toml:"queue"`
	Dispatcher  DispatcherConfig `toml:"dispatcher"`
	Parser      ParserConfig     `toml:"parser"`
	API         APIConfig        `toml:"api"`
	RateLimit   RateLimitConfig  `toml:"ratelimit"`
	Cleanup     CleanupConfig    `toml:"cleanup"`
	Callback    CallbackConfig   `toml:"callback"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig  `toml:"badger"`
	Uploads UploadsConfig `toml:"uploads"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// UploadsConfig configures the filesystem blob store
type UploadsConfig struct {
	Dir             string `toml:"dir" validate:"required"`
	MaxFileSize     int64  `toml:"max_file_size" validate:"gt=0"`
	MaxSyncFileSize int64  `toml:"max_sync_file_size" validate:"gt=0"`
}

type QueueConfig struct {
	LeaseDuration string `toml:"lease_duration"` // e.g. "30s" - how long a worker owns a leased job
	SweepInterval string `toml:"sweep_interval"` // e.g. "30s" - expired lease sweeper cadence
	MaxAttempts   int    `toml:"max_attempts" validate:"gt=0"`
}

type DispatcherConfig struct {
	Concurrency int `toml:"concurrency" validate:"gt=0"` // worker slots per process
}

type ParserConfig struct {
	OCREnabled bool     `toml:"ocr_enabled"`
	Languages  []string `toml:"languages"` // OCR language hints, e.g. ["eng", "chi_sim"]
}

type APIConfig struct {
	SyncDeadline string `toml:"sync_deadline"` // e.g. "60s" - inline parse timeout
}

type RateLimitConfig struct {
	Enabled   bool `toml:"enabled"`
	PerMinute int  `toml:"per_minute" validate:"gte=0"`
	PerHour   int  `toml:"per_hour" validate:"gte=0"`
}

type CleanupConfig struct {
	Enabled       bool   `toml:"enabled"`
	Schedule      string `toml:"schedule"` // cron spec for retention sweeps
	RetentionDays int    `toml:"retention_days" validate:"gt=0"`
}

type CallbackConfig struct {
	MaxAttempts int    `toml:"max_attempts" validate:"gt=0"`
	BackoffBase string `toml:"backoff_base"` // e.g. "2s"
	Timeout     string `toml:"timeout"`      // per-delivery HTTP timeout
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 7800,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/nutriparse",
				ResetOnStartup: false,
			},
			Uploads: UploadsConfig{
				Dir:             "./data/uploads",
				MaxFileSize:     50 * 1024 * 1024,
				MaxSyncFileSize: 5 * 1024 * 1024,
			},
		},
		Queue: QueueConfig{
			LeaseDuration: "30s",
			SweepInterval: "30s",
			MaxAttempts:   3,
		},
		Dispatcher: DispatcherConfig{
			Concurrency: 2,
		},
		Parser: ParserConfig{
			OCREnabled: true,
			Languages:  []string{"eng", "chi_sim"},
		},
		API: APIConfig{
			SyncDeadline: "60s",
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 100,
			PerHour:   1000,
		},
		Cleanup: CleanupConfig{
			Enabled:       true,
			Schedule:      "0 3 * * *",
			RetentionDays: 30,
		},
		Callback: CallbackConfig{
			MaxAttempts: 5,
			BackoffBase: "2s",
			Timeout:     "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple TOML files with defaults.
// Later files override earlier ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NUTRIPARSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("NUTRIPARSE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NUTRIPARSE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("NUTRIPARSE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("NUTRIPARSE_UPLOADS_DIR"); dir != "" {
		config.Storage.Uploads.Dir = dir
	}
	if size := os.Getenv("NUTRIPARSE_MAX_FILE_SIZE"); size != "" {
		if s, err := strconv.ParseInt(size, 10, 64); err == nil && s > 0 {
			config.Storage.Uploads.MaxFileSize = s
		}
	}
	if size := os.Getenv("NUTRIPARSE_MAX_SYNC_FILE_SIZE"); size != "" {
		if s, err := strconv.ParseInt(size, 10, 64); err == nil && s > 0 {
			config.Storage.Uploads.MaxSyncFileSize = s
		}
	}

	if lease := os.Getenv("NUTRIPARSE_QUEUE_LEASE_DURATION"); lease != "" {
		if _, err := time.ParseDuration(lease); err == nil {
			config.Queue.LeaseDuration = lease
		}
	}
	if sweep := os.Getenv("NUTRIPARSE_QUEUE_SWEEP_INTERVAL"); sweep != "" {
		if _, err := time.ParseDuration(sweep); err == nil {
			config.Queue.SweepInterval = sweep
		}
	}
	if attempts := os.Getenv("NUTRIPARSE_QUEUE_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil && a > 0 {
			config.Queue.MaxAttempts = a
		}
	}

	if concurrency := os.Getenv("NUTRIPARSE_DISPATCHER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Dispatcher.Concurrency = c
		}
	}

	if ocr := os.Getenv("NUTRIPARSE_PARSER_OCR_ENABLED"); ocr != "" {
		if b, err := strconv.ParseBool(ocr); err == nil {
			config.Parser.OCREnabled = b
		}
	}

	if deadline := os.Getenv("NUTRIPARSE_API_SYNC_DEADLINE"); deadline != "" {
		if _, err := time.ParseDuration(deadline); err == nil {
			config.API.SyncDeadline = deadline
		}
	}

	if enabled := os.Getenv("NUTRIPARSE_RATELIMIT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.RateLimit.Enabled = b
		}
	}
	if perMinute := os.Getenv("NUTRIPARSE_RATELIMIT_PER_MINUTE"); perMinute != "" {
		if n, err := strconv.Atoi(perMinute); err == nil && n >= 0 {
			config.RateLimit.PerMinute = n
		}
	}
	if perHour := os.Getenv("NUTRIPARSE_RATELIMIT_PER_HOUR"); perHour != "" {
		if n, err := strconv.Atoi(perHour); err == nil && n >= 0 {
			config.RateLimit.PerHour = n
		}
	}

	if days := os.Getenv("NUTRIPARSE_CLEANUP_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil && d > 0 {
			config.Cleanup.RetentionDays = d
		}
	}

	if level := os.Getenv("NUTRIPARSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration tree for invalid or contradictory values
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Storage.Uploads.MaxSyncFileSize > c.Storage.Uploads.MaxFileSize {
		return fmt.Errorf("invalid configuration: max_sync_file_size (%d) exceeds max_file_size (%d)",
			c.Storage.Uploads.MaxSyncFileSize, c.Storage.Uploads.MaxFileSize)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"queue.lease_duration", c.Queue.LeaseDuration},
		{"queue.sweep_interval", c.Queue.SweepInterval},
		{"api.sync_deadline", c.API.SyncDeadline},
		{"callback.backoff_base", c.Callback.BackoffBase},
		{"callback.timeout", c.Callback.Timeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid configuration: %s %q is not a duration: %w", field.name, field.value, err)
		}
	}

	return nil
}

// LeaseDuration returns the parsed queue lease duration
func (c *Config) LeaseDuration() time.Duration {
	return mustDuration(c.Queue.LeaseDuration, 30*time.Second)
}

// SweepInterval returns the parsed expired-lease sweep interval
func (c *Config) SweepInterval() time.Duration {
	return mustDuration(c.Queue.SweepInterval, 30*time.Second)
}

// SyncDeadline returns the parsed synchronous parse deadline
func (c *Config) SyncDeadline() time.Duration {
	return mustDuration(c.API.SyncDeadline, 60*time.Second)
}

// CallbackBackoffBase returns the parsed callback backoff base
func (c *Config) CallbackBackoffBase() time.Duration {
	return mustDuration(c.Callback.BackoffBase, 2*time.Second)
}

// CallbackTimeout returns the parsed per-delivery callback timeout
func (c *Config) CallbackTimeout() time.Duration {
	return mustDuration(c.Callback.Timeout, 30*time.Second)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/mediaforge/internal/diag"
	"github.com/maauso/mediaforge/internal/storage"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidWorkers is returned when WORKERS or QUEUE_SIZE is negative.
	ErrInvalidWorkers = errors.New("config: WORKERS and QUEUE_SIZE must not be negative")
	// ErrInvalidRetention is returned when JOB_RETENTION is negative.
	ErrInvalidRetention = errors.New("config: JOB_RETENTION must not be negative")
	// ErrInvalidLogFormat is returned when LOG_FORMAT is neither json nor text.
	ErrInvalidLogFormat = errors.New("config: LOG_FORMAT must be json or text")
	// ErrInvalidLogLevel is returned when LOG_LEVEL is not a known level.
	ErrInvalidLogLevel = errors.New("config: LOG_LEVEL must be trace, debug, info, warn or error")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Media tool settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"` // Derived from FFMPEG_PATH when empty
	PresetsFile string `env:"PRESETS_FILE" json:"presets_file,omitempty"`

	// Job runner settings
	Workers      int           `env:"WORKERS, default=0" json:"workers"` // 0 means one per CPU
	QueueSize    int           `env:"QUEUE_SIZE, default=64" json:"queue_size"`
	DatabasePath string        `env:"DATABASE_PATH" json:"database_path,omitempty"`    // In-memory job records when empty
	JobRetention time.Duration `env:"JOB_RETENTION, default=24h" json:"job_retention"` // 0 keeps finished jobs forever

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/mediaforge" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat     string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel      string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "trace", "debug", "info", "warn", "error"
	LogStdout     bool   `env:"LOG_STDOUT, default=true" json:"log_stdout"`
	LogDir        string `env:"LOG_DIR" json:"log_dir,omitempty"` // Rolling log files are disabled when empty
	LogFilePrefix string `env:"LOG_FILE_PREFIX, default=mediaforge" json:"log_file_prefix"`
	LogFileSuffix string `env:"LOG_FILE_SUFFIX, default=log" json:"log_file_suffix"`
	LogMaxFiles   uint64 `env:"LOG_MAX_FILES, default=0" json:"log_max_files"` // 0 keeps every file
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Workers < 0 || c.QueueSize < 0 {
		return ErrInvalidWorkers
	}
	if c.JobRetention < 0 {
		return ErrInvalidRetention
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	if _, err := diag.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidLogLevel
	}
	return nil
}

// DiagConfig translates the logging settings into a sink configuration.
func (c *Config) DiagConfig() diag.Config {
	level, err := diag.ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}

	out := diag.Config{
		Level:         level,
		Format:        diag.FormatText,
		WriteToStdout: c.LogStdout,
	}
	if strings.ToLower(c.LogFormat) == "json" {
		out.Format = diag.FormatJSON
	}
	if c.LogDir != "" {
		files := &storage.WriteToFiles{
			Path:       c.LogDir,
			FilePrefix: c.LogFilePrefix,
			FileSuffix: c.LogFileSuffix,
		}
		if c.LogMaxFiles > 0 {
			maxFiles := c.LogMaxFiles
			files.MaxFiles = &maxFiles
		}
		out.WriteToFiles = files
	}
	return out
}

// NewLogger creates a structured logger backed by a reconfigurable sink.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. A nil stdout means os.Stdout.
func (c *Config) NewLogger(stdout io.Writer) (*slog.Logger, *diag.Sink, error) {
	sink := diag.NewSink(stdout)
	if err := sink.Configure(c.DiagConfig()); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return sink.Logger(), sink, nil
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegPath: %s, Workers: %d, QueueSize: %d, DatabasePath: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s, LogDir: %s}",
		c.Port,
		c.FFmpegPath,
		c.Workers,
		c.QueueSize,
		c.DatabasePath,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
		c.LogDir,
	)
}

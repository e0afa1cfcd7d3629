// Package config handles configuration loading from TOML files, environment variables and CLI flags.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zot/lensconv/internal/shader"
)

// DefaultConfigFile is looked up in the working directory when no --config is given.
const DefaultConfigFile = "lensconv.toml"

// Config holds all configuration settings for the converter.
type Config struct {
	Output  OutputConfig  `toml:"output"`
	Batch   BatchConfig   `toml:"batch"`
	Shader  ShaderConfig  `toml:"shader"`
	Hooks   HooksConfig   `toml:"hooks"`
	History HistoryConfig `toml:"history"`
	Watch   WatchConfig   `toml:"watch"`
	Logging LoggingConfig `toml:"logging"`
}

// OutputConfig holds output-related settings.
type OutputConfig struct {
	Dir           string `toml:"dir"`
	KeepExtracted bool   `toml:"keep_extracted"` // false removes unpacked archive files once obs_assets is written
}

// BatchConfig holds batch conversion settings.
type BatchConfig struct {
	Workers      int      `toml:"workers"`
	Timeout      Duration `toml:"timeout"` // per package, 0 = none
	ReportFormat string   `toml:"report_format"`
}

// ShaderConfig holds shader output settings.
type ShaderConfig struct {
	Standalone bool          `toml:"standalone"` // emit vertex shader and technique block
	Rules      []shader.Rule `toml:"rules"`      // appended to the built-in GLSL table
}

// Dialect returns the GLSL dialect with the configured rules appended,
// rejecting tables that fail shader.Dialect.Validate.
func (s ShaderConfig) Dialect() (*shader.Dialect, error) {
	d := shader.DefaultDialect().WithRules(s.Rules)
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shader rules: %w", err)
	}
	return d, nil
}

// HooksConfig holds Lua hook settings.
type HooksConfig struct {
	Script string `toml:"script"`
}

// HistoryConfig holds conversion history storage settings.
type HistoryConfig struct {
	Type string `toml:"type"` // "none", "memory", "sqlite", "postgresql"
	Path string `toml:"path"` // SQLite file path
	URL  string `toml:"url"`  // PostgreSQL connection URL
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce Duration `toml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // each level lowers the log level by one step
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:           "extracted",
			KeepExtracted: true,
		},
		Batch: BatchConfig{
			Workers:      defaultWorkers(),
			ReportFormat: "json",
		},
		History: HistoryConfig{
			Type: "none",
			Path: "lensconv.db",
		},
		Watch: WatchConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	return n
}

// Load loads configuration from a TOML file and environment variables.
// An empty path means DefaultConfigFile, which may be absent; an explicit
// path must exist. CLI flags are applied by the caller afterwards.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.loadTOML(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("LENSCONV_OUTPUT"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("LENSCONV_KEEP_EXTRACTED"); v != "" {
		c.Output.KeepExtracted = v == "true" || v == "1"
	}
	if v := os.Getenv("LENSCONV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batch.Workers = n
		}
	}
	if v := os.Getenv("LENSCONV_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Batch.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("LENSCONV_REPORT_FORMAT"); v != "" {
		c.Batch.ReportFormat = v
	}
	if v := os.Getenv("LENSCONV_STANDALONE"); v != "" {
		c.Shader.Standalone = v == "true" || v == "1"
	}
	if v := os.Getenv("LENSCONV_HOOK_SCRIPT"); v != "" {
		c.Hooks.Script = v
	}
	if v := os.Getenv("LENSCONV_HISTORY"); v != "" {
		c.History.Type = v
	}
	if v := os.Getenv("LENSCONV_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("LENSCONV_HISTORY_URL"); v != "" {
		c.History.URL = v
	}
	if v := os.Getenv("LENSCONV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LENSCONV_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if c.Batch.Workers < 1 {
		c.Batch.Workers = 1
	}
	c.Batch.ReportFormat = strings.ToLower(c.Batch.ReportFormat)
	switch c.Batch.ReportFormat {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown report format %q (want json or yaml)", c.Batch.ReportFormat)
	}
	switch c.History.Type {
	case "", "none", "memory", "sqlite", "postgresql":
	default:
		return fmt.Errorf("unknown history type %q", c.History.Type)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	if _, err := c.Shader.Dialect(); err != nil {
		return err
	}
	return nil
}

// Level returns the effective log level after applying verbosity.
func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	level -= zapcore.Level(c.Logging.Verbosity)
	if level < zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}
	return level
}

// NewLoggerTo builds a logger that writes console-encoded entries to w.
func (c *Config) NewLoggerTo(w zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, zap.NewAtomicLevelAt(c.Level()))
	return zap.New(core)
}

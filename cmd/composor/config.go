package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Manifest string         `mapstructure:"manifest"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Build    BuildConfig    `mapstructure:"build"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// BuildConfig holds build executor configuration.
type BuildConfig struct {
	// MaxConcurrent bounds the build worker pool.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DeployConfig holds deployment executor configuration.
type DeployConfig struct {
	// ComposeCommand overrides compose tool detection, e.g. "docker compose".
	ComposeCommand string `mapstructure:"compose_command"`

	// StepTimeout bounds each deployment step. Zero disables the limit.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// LockRetries and LockBackoff tune per-application lock acquisition.
	LockRetries int           `mapstructure:"lock_retries"`
	LockBackoff time.Duration `mapstructure:"lock_backoff"`
}

// PathsConfig holds the working directories.
type PathsConfig struct {
	// Workspace is where repositories are checked out, one subdirectory
	// per application.
	Workspace string `mapstructure:"workspace"`

	// EnvDir is where env files and invocation reports are written.
	EnvDir string `mapstructure:"env_dir"`

	// LockDir is where per-application lock files live.
	LockDir string `mapstructure:"lock_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("manifest", "./apps.yaml")
	v.SetDefault("database.dsn", "./data/composor.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("build.max_concurrent", 2)
	v.SetDefault("deploy.compose_command", "")
	v.SetDefault("deploy.step_timeout", "5m")
	v.SetDefault("deploy.lock_retries", 5)
	v.SetDefault("deploy.lock_backoff", "2s")
	v.SetDefault("paths.workspace", "./data/src")
	v.SetDefault("paths.env_dir", "./data/env")
	v.SetDefault("paths.lock_dir", "./data/locks")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("COMPOSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ComposeCommand returns the configured compose invocation split into argv
// form, or nil when detection should decide.
func (c *Config) ComposeCommand() []string {
	if c.Deploy.ComposeCommand == "" {
		return nil
	}
	return strings.Fields(c.Deploy.ComposeCommand)
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Logs go to stderr: stdout carries command output.
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

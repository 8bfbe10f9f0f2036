// Package config handles configuration loading and management for floe.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for floe.
type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Analyze   AnalyzeConfig   `mapstructure:"analyze"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// ExecutionConfig holds coordinator settings.
type ExecutionConfig struct {
	// MaxConcurrency bounds the worker pool.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// RetryLimit is the number of extra worker attempts after a failure.
	RetryLimit int `mapstructure:"retry_limit"`
	// FallbackMode is auto or forced.
	FallbackMode string `mapstructure:"fallback_mode"`
	// ApprovalTimeout bounds how long a task may wait for approval.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
}

// AnalyzeConfig holds conflict analyzer settings.
type AnalyzeConfig struct {
	// OwnerOverloadThreshold is the in-progress task count above which
	// an owner_overload finding fires.
	OwnerOverloadThreshold int `mapstructure:"owner_overload_threshold"`
}

// PathsConfig holds file locations, relative to the project root.
type PathsConfig struct {
	// PlanDocument is the human-edited plan file.
	PlanDocument string `mapstructure:"plan_document"`
	// TrackerFile is the issue-export JSON file the tracker adapter
	// reads and patches.
	TrackerFile string `mapstructure:"tracker_file"`
	// Database is the sqlite task store.
	Database string `mapstructure:"database"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FLOE_*)
// 2. Project config (.floe/config.yaml in current directory or parent)
// 3. User config (~/.config/floe/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("execution.max_concurrency", cfg.Execution.MaxConcurrency)
	v.Set("execution.retry_limit", cfg.Execution.RetryLimit)
	v.Set("execution.fallback_mode", cfg.Execution.FallbackMode)
	v.Set("execution.approval_timeout", cfg.Execution.ApprovalTimeout.String())
	v.Set("analyze.owner_overload_threshold", cfg.Analyze.OwnerOverloadThreshold)
	v.Set("paths.plan_document", cfg.Paths.PlanDocument)
	v.Set("paths.tracker_file", cfg.Paths.TrackerFile)
	v.Set("paths.database", cfg.Paths.Database)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.max_concurrency", 4)
	v.SetDefault("execution.retry_limit", 2)
	v.SetDefault("execution.fallback_mode", "auto")
	v.SetDefault("execution.approval_timeout", "10m")

	v.SetDefault("analyze.owner_overload_threshold", 3)

	v.SetDefault("paths.plan_document", filepath.Join(".floe", "plan.yaml"))
	v.SetDefault("paths.tracker_file", filepath.Join(".floe", "issues.json"))
	v.SetDefault("paths.database", filepath.Join(".floe", "tasks.db"))
}

// bindEnv maps FLOE_* environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.BindEnv("execution.max_concurrency", "FLOE_MAX_CONCURRENCY")
	v.BindEnv("execution.retry_limit", "FLOE_RETRY_LIMIT")
	v.BindEnv("execution.fallback_mode", "FLOE_FALLBACK_MODE")
	v.BindEnv("execution.approval_timeout", "FLOE_APPROVAL_TIMEOUT")
	v.BindEnv("analyze.owner_overload_threshold", "FLOE_OWNER_OVERLOAD_THRESHOLD")
	v.BindEnv("paths.plan_document", "FLOE_PLAN_DOCUMENT")
	v.BindEnv("paths.tracker_file", "FLOE_TRACKER_FILE")
	v.BindEnv("paths.database", "FLOE_DATABASE")
}

// getUserConfigDir returns the XDG config directory for floe.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "floe")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "floe")
	}
	return filepath.Join(home, ".config", "floe")
}

// findProjectConfig searches for .floe/config.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".floe", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			MaxConcurrency:  4,
			RetryLimit:      2,
			FallbackMode:    "auto",
			ApprovalTimeout: 10 * time.Minute,
		},
		Analyze: AnalyzeConfig{
			OwnerOverloadThreshold: 3,
		},
		Paths: PathsConfig{
			PlanDocument: filepath.Join(".floe", "plan.yaml"),
			TrackerFile:  filepath.Join(".floe", "issues.json"),
			Database:     filepath.Join(".floe", "tasks.db"),
		},
	}
}

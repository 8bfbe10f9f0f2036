package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pcranston/floe/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify floe configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/floe/config.yaml
Project-specific overrides can be placed in .floe/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("execution.max_concurrency: %d\n", cfg.Execution.MaxConcurrency)
	fmt.Printf("execution.retry_limit: %d\n", cfg.Execution.RetryLimit)
	fmt.Printf("execution.fallback_mode: %s\n", cfg.Execution.FallbackMode)
	fmt.Printf("execution.approval_timeout: %s\n", cfg.Execution.ApprovalTimeout)
	fmt.Printf("analyze.owner_overload_threshold: %d\n", cfg.Analyze.OwnerOverloadThreshold)
	fmt.Printf("paths.plan_document: %s\n", cfg.Paths.PlanDocument)
	fmt.Printf("paths.tracker_file: %s\n", cfg.Paths.TrackerFile)
	fmt.Printf("paths.database: %s\n", cfg.Paths.Database)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "execution.max_concurrency":
		return strconv.Itoa(cfg.Execution.MaxConcurrency), nil
	case "execution.retry_limit":
		return strconv.Itoa(cfg.Execution.RetryLimit), nil
	case "execution.fallback_mode":
		return cfg.Execution.FallbackMode, nil
	case "execution.approval_timeout":
		return cfg.Execution.ApprovalTimeout.String(), nil
	case "analyze.owner_overload_threshold":
		return strconv.Itoa(cfg.Analyze.OwnerOverloadThreshold), nil
	case "paths.plan_document":
		return cfg.Paths.PlanDocument, nil
	case "paths.tracker_file":
		return cfg.Paths.TrackerFile, nil
	case "paths.database":
		return cfg.Paths.Database, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "execution.max_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("max_concurrency must be a positive integer")
		}
		cfg.Execution.MaxConcurrency = n
	case "execution.retry_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("retry_limit must be a non-negative integer")
		}
		cfg.Execution.RetryLimit = n
	case "execution.fallback_mode":
		if value != "auto" && value != "forced" {
			return fmt.Errorf("fallback_mode must be auto or forced")
		}
		cfg.Execution.FallbackMode = value
	case "execution.approval_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("approval_timeout must be a duration (e.g. 10m)")
		}
		cfg.Execution.ApprovalTimeout = d
	case "analyze.owner_overload_threshold":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("owner_overload_threshold must be a positive integer")
		}
		cfg.Analyze.OwnerOverloadThreshold = n
	case "paths.plan_document":
		cfg.Paths.PlanDocument = value
	case "paths.tracker_file":
		cfg.Paths.TrackerFile = value
	case "paths.database":
		cfg.Paths.Database = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Execution.MaxConcurrency != 4 {
		t.Errorf("expected default max_concurrency 4, got %d", cfg.Execution.MaxConcurrency)
	}

	if cfg.Execution.RetryLimit != 2 {
		t.Errorf("expected default retry_limit 2, got %d", cfg.Execution.RetryLimit)
	}

	if cfg.Execution.FallbackMode != "auto" {
		t.Errorf("expected default fallback_mode 'auto', got %q", cfg.Execution.FallbackMode)
	}

	if cfg.Execution.ApprovalTimeout != 10*time.Minute {
		t.Errorf("expected approval timeout 10m, got %v", cfg.Execution.ApprovalTimeout)
	}

	if cfg.Analyze.OwnerOverloadThreshold != 3 {
		t.Errorf("expected owner overload threshold 3, got %d", cfg.Analyze.OwnerOverloadThreshold)
	}

	if cfg.Paths.PlanDocument != filepath.Join(".floe", "plan.yaml") {
		t.Errorf("unexpected plan document path %q", cfg.Paths.PlanDocument)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
execution:
  max_concurrency: 8
  retry_limit: 1
  fallback_mode: forced
  approval_timeout: 30s
analyze:
  owner_overload_threshold: 5
paths:
  plan_document: docs/plan.yaml
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Execution.MaxConcurrency != 8 {
		t.Errorf("expected max_concurrency 8, got %d", cfg.Execution.MaxConcurrency)
	}
	if cfg.Execution.RetryLimit != 1 {
		t.Errorf("expected retry_limit 1, got %d", cfg.Execution.RetryLimit)
	}
	if cfg.Execution.FallbackMode != "forced" {
		t.Errorf("expected fallback_mode forced, got %q", cfg.Execution.FallbackMode)
	}
	if cfg.Execution.ApprovalTimeout != 30*time.Second {
		t.Errorf("expected approval_timeout 30s, got %v", cfg.Execution.ApprovalTimeout)
	}
	if cfg.Analyze.OwnerOverloadThreshold != 5 {
		t.Errorf("expected owner_overload_threshold 5, got %d", cfg.Analyze.OwnerOverloadThreshold)
	}
	if cfg.Paths.PlanDocument != "docs/plan.yaml" {
		t.Errorf("expected plan_document docs/plan.yaml, got %q", cfg.Paths.PlanDocument)
	}

	// Unset keys keep their defaults.
	if cfg.Paths.Database != filepath.Join(".floe", "tasks.db") {
		t.Errorf("expected default database path, got %q", cfg.Paths.Database)
	}
}

func TestEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("execution:\n  max_concurrency: 2\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FLOE_MAX_CONCURRENCY", "16")
	t.Setenv("FLOE_FALLBACK_MODE", "forced")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Execution.MaxConcurrency != 16 {
		t.Errorf("expected env to override max_concurrency, got %d", cfg.Execution.MaxConcurrency)
	}
	if cfg.Execution.FallbackMode != "forced" {
		t.Errorf("expected env to override fallback_mode, got %q", cfg.Execution.FallbackMode)
	}
}

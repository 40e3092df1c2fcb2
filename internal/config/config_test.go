package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Server.MaxConcurrentAgents != 5 {
		t.Fatalf("expected default max concurrent agents 5, got %d", cfg.Server.MaxConcurrentAgents)
	}
	if cfg.Monitor.HardCap < cfg.Monitor.SoftCap {
		t.Fatalf("hard cap %d must be >= soft cap %d", cfg.Monitor.HardCap, cfg.Monitor.SoftCap)
	}
}

func TestValidateRejectsOutOfRangeConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.MaxConcurrentAgents = 21
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for concurrency above 20")
	}
}

func TestLoadResolvesIncludesAndEnv(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	mainPath := filepath.Join(dir, "orchestrator.yaml")

	if err := os.WriteFile(basePath, []byte("monitor:\n  hard_cap: 40\n  soft_cap: 25\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mainPath, []byte("$include: base.yaml\nserver:\n  max_concurrent_agents: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MAX_CONCURRENT_AGENTS", "7")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.MaxConcurrentAgents != 7 {
		t.Fatalf("expected env override to win, got %d", cfg.Server.MaxConcurrentAgents)
	}
	if cfg.Monitor.HardCap != 40 || cfg.Monitor.SoftCap != 25 {
		t.Fatalf("expected included values, got hardCap=%d softCap=%d", cfg.Monitor.HardCap, cfg.Monitor.SoftCap)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("expected LOG_LEVEL override uppercased, got %q", cfg.Logging.Level)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected an omitted version to default to %d, got %d", CurrentVersion, cfg.Version)
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte("version: 99\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a config version newer than this build")
	}
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VersionError, got %T: %v", err, err)
	}
	if ve.Reason != "newer than this build" {
		t.Fatalf("reason = %q, want %q", ve.Reason, "newer than this build")
	}
}

func TestLoadAcceptsExplicitCurrentVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, cfg.Version)
	}
}

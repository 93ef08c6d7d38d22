package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/halftone_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	t.Setenv("MINIO_SECRET_KEY", "minioadmin")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.WorkerConcurrency)
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Errorf("expected default job timeout 5m, got %s", cfg.JobTimeout)
	}
	if cfg.MinIOBucket != "images" {
		t.Errorf("expected default bucket images, got %q", cfg.MinIOBucket)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("STUCK_PROCESSING_AFTER", "45m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.WorkerConcurrency != 16 {
		t.Errorf("expected concurrency 16, got %d", cfg.WorkerConcurrency)
	}
	if cfg.StuckProcessing != 45*time.Minute {
		t.Errorf("expected 45m, got %s", cfg.StuckProcessing)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %q", cfg.LogLevel)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JOB_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid JOB_TIMEOUT")
	}
}

func TestConfigFileOverride(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "halftone.yaml")
	content := []byte("port: 9999\nlog_level: warn\nminio:\n  bucket: overridden\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	// Env var beats file.
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("file port not applied, got %d", cfg.Port)
	}
	if cfg.MinIOBucket != "overridden" {
		t.Errorf("file bucket not applied, got %q", cfg.MinIOBucket)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("env should win over file, got %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}
}

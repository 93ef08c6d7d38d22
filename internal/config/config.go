package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    int
	BaseURL string

	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	MaxUploadSize      int64
	WorkerConcurrency  int
	JobTimeout         time.Duration
	SweepInterval      time.Duration
	StuckPendingAfter  time.Duration
	StuckProcessing    time.Duration
	PresignedURLExpiry int

	JWTSecret string

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string
	SMTPFromName    string
}

// fileConfig mirrors the env keys for the optional YAML override selected
// by CONFIG_FILE. Values present in the file win over process env defaults
// but explicit env vars still win over the file.
type fileConfig struct {
	Port        *int    `yaml:"port"`
	BaseURL     *string `yaml:"base_url"`
	Environment *string `yaml:"environment"`
	LogLevel    *string `yaml:"log_level"`
	DatabaseURL *string `yaml:"database_url"`
	RedisURL    *string `yaml:"redis_url"`
	MinIO       *struct {
		Endpoint  *string `yaml:"endpoint"`
		AccessKey *string `yaml:"access_key"`
		SecretKey *string `yaml:"secret_key"`
		Bucket    *string `yaml:"bucket"`
		UseSSL    *bool   `yaml:"use_ssl"`
		Region    *string `yaml:"region"`
	} `yaml:"minio"`
}

func Load() (*Config, error) {
	// Best effort; absent .env files are the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "images")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 20*1024*1024)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.StuckPendingAfter, err = getEnvDuration("STUCK_PENDING_AFTER", "30m")
	if err != nil {
		return nil, fmt.Errorf("invalid STUCK_PENDING_AFTER: %w", err)
	}
	cfg.StuckProcessing, err = getEnvDuration("STUCK_PROCESSING_AFTER", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid STUCK_PROCESSING_AFTER: %w", err)
	}
	cfg.PresignedURLExpiry = getEnvInt("PRESIGNED_URL_EXPIRY", 3600)

	cfg.JWTSecret = getEnvString("JWT_SECRET", "change-me-in-production")

	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 1025)
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFromAddress = getEnvString("SMTP_FROM_ADDRESS", "noreply@halftone.dev")
	cfg.SMTPFromName = getEnvString("SMTP_FROM_NAME", "halftone")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	setIfUnsetString := func(dst *string, envKey string, val *string) {
		if val != nil && os.Getenv(envKey) == "" {
			*dst = *val
		}
	}

	if fc.Port != nil && os.Getenv("PORT") == "" {
		c.Port = *fc.Port
	}
	setIfUnsetString(&c.BaseURL, "BASE_URL", fc.BaseURL)
	setIfUnsetString(&c.Environment, "ENVIRONMENT", fc.Environment)
	setIfUnsetString(&c.LogLevel, "LOG_LEVEL", fc.LogLevel)
	setIfUnsetString(&c.DatabaseURL, "DATABASE_URL", fc.DatabaseURL)
	setIfUnsetString(&c.RedisURL, "REDIS_URL", fc.RedisURL)

	if fc.MinIO != nil {
		setIfUnsetString(&c.MinIOEndpoint, "MINIO_ENDPOINT", fc.MinIO.Endpoint)
		setIfUnsetString(&c.MinIOAccessKey, "MINIO_ACCESS_KEY", fc.MinIO.AccessKey)
		setIfUnsetString(&c.MinIOSecretKey, "MINIO_SECRET_KEY", fc.MinIO.SecretKey)
		setIfUnsetString(&c.MinIOBucket, "MINIO_BUCKET", fc.MinIO.Bucket)
		setIfUnsetString(&c.MinIORegion, "MINIO_REGION", fc.MinIO.Region)
		if fc.MinIO.UseSSL != nil && os.Getenv("MINIO_USE_SSL") == "" {
			c.MinIOUseSSL = *fc.MinIO.UseSSL
		}
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.StuckProcessing < time.Minute {
		return fmt.Errorf("stuck processing threshold too low: %s", c.StuckProcessing)
	}

	return nil
}

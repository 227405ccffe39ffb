// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all asset engine server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Auth
	JWTSecret string

	// Storage backend ("s3" or "local", default: "s3")
	StorageBackend   string
	LocalStoragePath string

	// Key scheme
	Environment       string // e.g. "production", "staging"
	VisibilityTier    string // e.g. "protected"
	LegacyKeyFallback bool   // probe pre-migration document paths on read

	// Uploads
	MaxUploadSize int64

	// Delivery reconciler
	RaceThreshold time.Duration
	RetryWait     time.Duration

	// Document transform defaults
	FooterText    string
	WatermarkText string
	MigrationsDir string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DatabaseURL: envOr("DATABASE_URL", ""),
		S3Endpoint:  envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:    envOr("S3_BUCKET", "assets"),
		S3AccessKey: envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey: envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3UseSSL:    envBool("S3_USE_SSL", false),
		TLSCertFile: envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:  envOr("TLS_KEY_FILE", ""),
		JWTSecret:   envOr("JWT_SECRET", ""),

		StorageBackend:   envOr("STORAGE_BACKEND", "s3"),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "/data/storage"),

		Environment:       envOr("ASSET_ENVIRONMENT", "production"),
		VisibilityTier:    envOr("ASSET_TIER", "protected"),
		LegacyKeyFallback: envBool("LEGACY_KEY_FALLBACK", false),

		MaxUploadSize: envInt64("MAX_UPLOAD_SIZE", 5<<30), // 5 GiB

		RaceThreshold: envDuration("RACE_THRESHOLD", 30*time.Second),
		RetryWait:     envDuration("RACE_RETRY_WAIT", 2*time.Second),

		FooterText:    envOr("FOOTER_TEXT", "© Skillforge. Licensed to the purchaser, redistribution prohibited."),
		WatermarkText: envOr("WATERMARK_TEXT", "PREVIEW"),
		MigrationsDir: envOr("MIGRATIONS_DIR", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StorageBackend != "s3" && cfg.StorageBackend != "local" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be \"s3\" or \"local\", got %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreFile = "file"
	StoreBolt = "bolt"
)

// Config holds the client configuration.
type Config struct {
	// Server
	ServerURL string
	Timeout   time.Duration

	// Session
	SessionStore string
	SessionPath  string

	// Preview cache
	CacheDir string
	CacheMax int64

	// Logging
	LogLevel  string
	LogFormat string

	// Optional Prometheus listener
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults. When
// envFile exists its variables are loaded first; variables already set in
// the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerURL:    envOr("ECLOUD_SERVER", "http://localhost:8080"),
		Timeout:      envDuration("ECLOUD_TIMEOUT", 30*time.Second),
		SessionStore: envOr("ECLOUD_SESSION_STORE", StoreFile),
		SessionPath:  envOr("ECLOUD_SESSION_PATH", ""),
		CacheDir:     envOr("ECLOUD_CACHE_DIR", filepath.Join(os.TempDir(), "ecloud-cache")),
		CacheMax:     envInt64("ECLOUD_CACHE_MAX", 256*1024*1024),
		LogLevel:     envOr("LOG_LEVEL", "warn"),
		LogFormat:    envOr("LOG_FORMAT", "console"),
		MetricsAddr:  envOr("METRICS_ADDR", ""),
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ECLOUD_SERVER must be an absolute URL, got %q", cfg.ServerURL)
	}
	if cfg.SessionStore != StoreFile && cfg.SessionStore != StoreBolt {
		return nil, fmt.Errorf("ECLOUD_SESSION_STORE must be %q or %q, got %q", StoreFile, StoreBolt, cfg.SessionStore)
	}
	if cfg.CacheMax < 0 {
		return nil, fmt.Errorf("ECLOUD_CACHE_MAX must not be negative")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

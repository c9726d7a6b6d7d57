// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides settings for the reporting cache.
type RedisConfig interface {
	GetRedisURL() string
	GetReportCacheTTL() time.Duration
	IsRedisEnabled() bool
}

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL       string
	ReportCacheTTL time.Duration
}

// Compile-time checks that Config satisfies the module interfaces.
var (
	_ DatabaseConfig = (*Config)(nil)
	_ HTTPConfig     = (*Config)(nil)
	_ RedisConfig    = (*Config)(nil)
)

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		CORSAllowAll:   getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:    splitCSV(getEnv("CORS_ORIGINS", "")),
		CORSAllowCreds: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
		RedisURL:       os.Getenv("REDIS_URL"),
		ReportCacheTTL: getEnvDuration("REPORT_CACHE_TTL", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// GetDatabaseURL returns the postgres connection string.
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// GetHTTPAddr returns the listen address for the HTTP server.
func (c *Config) GetHTTPAddr() string { return c.HTTPAddr }

// GetCORSAllowAll reports whether any origin is allowed.
func (c *Config) GetCORSAllowAll() bool { return c.CORSAllowAll }

// GetCORSOrigins returns the allowed CORS origins.
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// GetCORSAllowCreds reports whether credentials are allowed cross-origin.
func (c *Config) GetCORSAllowCreds() bool { return c.CORSAllowCreds }

// GetRedisURL returns the redis connection string for the reporting cache.
func (c *Config) GetRedisURL() string { return c.RedisURL }

// GetReportCacheTTL returns how long reporting aggregates may be cached.
func (c *Config) GetReportCacheTTL() time.Duration { return c.ReportCacheTTL }

// IsRedisEnabled reports whether a reporting cache is configured.
func (c *Config) IsRedisEnabled() bool { return c.RedisURL != "" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

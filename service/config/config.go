package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/brojonat/aascan/service/networks"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Query API configuration
	QueryAPIURL    string
	QueryTimeout   time.Duration
	ResolveTimeout time.Duration

	// Browsing configuration
	DefaultNetwork string
	SessionTTL     time.Duration

	// Database configuration (optional; preferences stay in memory without it)
	DatabaseURL string

	// NATS configuration (optional; notifications are not relayed without it)
	NATSURL string

	// Redis configuration (optional; responses are not cached without it)
	RedisAddr string
	CacheTTL  time.Duration

	// Tracing configuration (optional)
	OTELEndpoint string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Query API configuration
	cfg.QueryAPIURL = strings.TrimRight(os.Getenv("QUERY_API_URL"), "/")
	if cfg.QueryAPIURL == "" {
		errs = append(errs, fmt.Errorf("QUERY_API_URL is required"))
	} else if err := validateURL(cfg.QueryAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("QUERY_API_URL: %w", err))
	}

	queryTimeout, err := parseDuration("QUERY_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.QueryTimeout = queryTimeout
	}

	resolveTimeout, err := parseDuration("RESOLVE_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ResolveTimeout = resolveTimeout
	}

	// Browsing configuration
	cfg.DefaultNetwork = strings.ToLower(getEnvOrDefault("DEFAULT_NETWORK", networks.BuiltinRegistry().Default().Key))
	if !networks.BuiltinRegistry().Contains(cfg.DefaultNetwork) {
		errs = append(errs, fmt.Errorf("DEFAULT_NETWORK %q is not a supported network", cfg.DefaultNetwork))
	}

	sessionTTL, err := parseDuration("SESSION_TTL", "30m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SessionTTL = sessionTTL
	}

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	cacheTTL, err := parseDuration("CACHE_TTL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CacheTTL = cacheTTL
	}

	// Validate timeouts
	if cfg.QueryTimeout > 0 && cfg.ResolveTimeout > 0 && cfg.ResolveTimeout < cfg.QueryTimeout {
		errs = append(errs, fmt.Errorf("RESOLVE_TIMEOUT (%v) cannot be less than QUERY_TIMEOUT (%v)",
			cfg.ResolveTimeout, cfg.QueryTimeout))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.QueryAPIURL == "" {
		errs = append(errs, fmt.Errorf("QueryAPIURL is required"))
	} else if err := validateURL(c.QueryAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("QueryAPIURL: %w", err))
	}

	if c.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("QueryTimeout must be positive"))
	}

	if c.ResolveTimeout < c.QueryTimeout {
		errs = append(errs, fmt.Errorf("ResolveTimeout cannot be less than QueryTimeout"))
	}

	if !networks.BuiltinRegistry().Contains(c.DefaultNetwork) {
		errs = append(errs, fmt.Errorf("DefaultNetwork %q is not a supported network", c.DefaultNetwork))
	}

	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Errorf("SessionTTL must be at least 1 minute"))
	}

	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CacheTTL must be positive when RedisAddr is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: host is required", raw)
	}
	return nil
}

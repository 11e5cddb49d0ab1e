package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port         string
	CookieSecret string

	// Optional variables with defaults
	GoEnv          string
	LogLevel       string
	AllowedOrigins string
	PingInterval   time.Duration

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	MediaDir  string
	StaticDir string

	TracingEnabled bool
	OTLPEndpoint   string

	// Rate limits in ulule/limiter formatted-rate notation
	RateLimitWS    string
	RateLimitLobby string

	// DemoRoom seeds a room with the bundled demo stream at boot
	DemoRoom bool
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return c.GoEnv != "production"
}

// ValidateEnv validates all environment variables and returns a Config.
// Every failure is collected so one run surfaces all of them.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: COOKIE_SECRET (minimum 32 bytes, signs identity cookies)
	cfg.CookieSecret = os.Getenv("COOKIE_SECRET")
	if cfg.CookieSecret == "" {
		errors = append(errors, "COOKIE_SECRET is required")
	} else if len(cfg.CookieSecret) < 32 {
		errors = append(errors, fmt.Sprintf("COOKIE_SECRET must be at least 32 characters (got %d)", len(cfg.CookieSecret)))
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: PING_INTERVAL_MS (defaults to 5000)
	pingMs := getEnvOrDefault("PING_INTERVAL_MS", "5000")
	if ms, err := strconv.Atoi(pingMs); err != nil || ms < 1 {
		errors = append(errors, fmt.Sprintf("PING_INTERVAL_MS must be a positive integer (got '%s')", pingMs))
	} else {
		cfg.PingInterval = time.Duration(ms) * time.Millisecond
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.MediaDir = os.Getenv("MEDIA_DIR")
	cfg.StaticDir = os.Getenv("STATIC_DIR")

	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// Rate limits (M = Minute, H = Hour)
	cfg.RateLimitWS = getEnvOrDefault("RATE_LIMIT_WS", "30-M")
	cfg.RateLimitLobby = getEnvOrDefault("RATE_LIMIT_LOBBY", "10-M")

	cfg.DemoRoom = os.Getenv("DEMO_ROOM") == "true"

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"cookie_secret", redactSecret(cfg.CookieSecret),
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"ping_interval", cfg.PingInterval,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"media_dir", cfg.MediaDir,
		"static_dir", cfg.StaticDir,
		"tracing_enabled", cfg.TracingEnabled,
		"rate_limit_ws", cfg.RateLimitWS,
		"rate_limit_lobby", cfg.RateLimitLobby,
		"demo_room", cfg.DemoRoom,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}

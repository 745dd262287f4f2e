// Package config defines the global configuration for the Emberwatch service.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor principles: values come from the OS
// environment, with a .env file as a development convenience.
//
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"time"

	"emberwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"emberwatch-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Predictor PredictorConfig
	Historic  HistoricConfig
	Auth      AuthConfig
	Security  SecurityConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public app URL used to build redirect targets (no trailing slash).
	AppURL string `envconfig:"APP_URL" default:"http://localhost:3000" validate:"required,url"`
	// RequestTimeout is the soft deadline applied to every request context.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password SecretString  `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	// HistoricTTL bounds how long historic wildfire aggregates are served
	// from cache before the upstream endpoint is consulted again.
	HistoricTTL time.Duration `envconfig:"HISTORIC_CACHE_TTL" default:"6h"`
}

// PredictorConfig holds the compute endpoint settings.
type PredictorConfig struct {
	BaseURL string       `envconfig:"PREDICTOR_URL" validate:"required,url"`
	APIKey  SecretString `envconfig:"PREDICTOR_API_KEY"`
	Timeout time.Duration `envconfig:"PREDICTOR_TIMEOUT" default:"20s"`
	// RequestsPerSecond throttles calls to the compute endpoint.
	RequestsPerSecond float64 `envconfig:"PREDICTOR_RPS" default:"5"`
	Burst             int     `envconfig:"PREDICTOR_BURST" default:"10"`
}

// HistoricConfig holds the historic-data endpoint settings.
type HistoricConfig struct {
	BaseURL string        `envconfig:"HISTORIC_URL" validate:"required,url"`
	Timeout time.Duration `envconfig:"HISTORIC_TIMEOUT" default:"15s"`
}

// AuthConfig holds session management settings.
type AuthConfig struct {
	SessionDuration time.Duration `envconfig:"SESSION_DURATION" default:"168h"`
	CookieName      string        `envconfig:"SESSION_COOKIE_NAME" default:"session_id"`
	CookieSecure    bool          `envconfig:"SESSION_COOKIE_SECURE" default:"true"`
	// ConfirmTokenTTL bounds email-confirmation token validity.
	ConfirmTokenTTL time.Duration `envconfig:"CONFIRM_TOKEN_TTL" default:"24h"`
	// ResetTokenTTL bounds password-reset token validity.
	ResetTokenTTL time.Duration `envconfig:"RESET_TOKEN_TTL" default:"1h"`
}

// SecurityConfig holds abuse-protection and CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Login lockout: more than MaxFailedAttempts failures per identifier
	// within LockoutWindow blocks further attempts.
	MaxFailedAttempts int           `envconfig:"MAX_FAILED_ATTEMPTS" default:"10"`
	LockoutWindow     time.Duration `envconfig:"LOCKOUT_WINDOW" default:"15m"`
	// Rate limiting per client IP.
	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

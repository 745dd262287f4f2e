package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError describes a configuration failure with enough context to fix
// the deployment without reading code.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load builds the process configuration from the environment. A .env file in
// the working directory is merged in first when present (development only;
// real environment variables always win). The loaded config is validated
// before being returned; callers must treat any error as fatal.
func Load() (*Config, error) {
	// Force UTC for the process. All persistence and comparisons assume it.
	time.Local = time.UTC
	os.Setenv("TZ", "UTC")

	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Reason: "failed to process environment", Err: err}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return &ConfigError{
				Field:  first.Namespace(),
				Reason: fmt.Sprintf("failed %q validation", first.Tag()),
				Err:    err,
			}
		}
		return &ConfigError{Reason: "validation failed", Err: err}
	}

	if cfg.Security.MaxFailedAttempts < 1 {
		return &ConfigError{Field: "Security.MaxFailedAttempts", Reason: "must be at least 1"}
	}
	if cfg.Auth.SessionDuration < time.Minute {
		return &ConfigError{Field: "Auth.SessionDuration", Reason: "must be at least 1m"}
	}

	return nil
}

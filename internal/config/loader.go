// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"

	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a stage name and an underlying error.
type ConfigError struct {
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Loading stage identifiers used in ConfigError.Stage.
const (
	stageDotenv   = "dotenv"
	stageEnv      = "env"
	stageValidate = "validate"
)

// LoadConfig loads and validates the service configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs. Subscription start
	// times are computed as Unix timestamps relative to "now".
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). Existing environment
	// variables take precedence over file values.
	if err := godotenv.Load(); err != nil {
		// A missing .env file is the normal case in deployed environments;
		// only malformed files produce a usable error here, and godotenv
		// conflates the two, so the error is intentionally ignored.
		_ = err
	}

	// Step 3: Populate the struct from environment variables.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Stage:   stageEnv,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Validate.
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct validation over a populated Config. Exposed separately
// so tests and tooling can validate hand-built configs.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Stage:   stageValidate,
			Message: "configuration failed validation",
			Err:     err,
		}
	}
	return nil
}

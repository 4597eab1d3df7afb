// Package config defines the global configuration structure for the
// subscription service. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup (fail fast).
package config

import (
	"time"

	"subhub/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the subscription service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"subhub-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// CORS origins for the browser-facing endpoints. The payment popup flow
	// calls these endpoints cross-origin, so the default is wide open; this
	// mirrors the deployed behavior and is a known security gap.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// GatewayConfig holds Razorpay credentials and the two configured plan ids.
type GatewayConfig struct {
	KeyID     string       `envconfig:"RAZORPAY_KEY_ID" validate:"required"`
	KeySecret SecretString `envconfig:"RAZORPAY_KEY_SECRET" validate:"required"`

	// The two billing plans users can subscribe to. Plan ids are opaque
	// gateway identifiers.
	Plan1ID string `envconfig:"RAZORPAY_SERVICE1_PLAN_ID" validate:"required"`
	Plan2ID string `envconfig:"RAZORPAY_SERVICE2_PLAN_ID" validate:"required"`

	// BaseURL override is used by tests; empty means the public API.
	BaseURL string `envconfig:"RAZORPAY_BASE_URL"`
}

// PlanID resolves a PlanType to the configured gateway plan id.
// Returns an empty string for invalid plan types; callers validate first.
func (g GatewayConfig) PlanID(plan types.PlanType) string {
	switch plan {
	case types.PlanTypeService1:
		return g.Plan1ID
	case types.PlanTypeService2:
		return g.Plan2ID
	default:
		return ""
	}
}

// AWSConfig holds AWS resource identifiers for the webhook dead-letter queue.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-south-1"`

	// WebhookDLQ is the SQS queue URL for dead-lettered webhook events.
	// Empty disables the dead-letter side channel.
	WebhookDLQ string `envconfig:"SQS_WEBHOOK_DLQ"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

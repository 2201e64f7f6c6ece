package routekit

import (
	"github.com/dmitrymomot/routekit/pkg/environment"
)

// Config holds the pipeline settings loaded from the environment.
//
// Example:
//
//	var cfg routekit.Config
//	config.MustLoad(&cfg)
type Config struct {
	// Environment selects the runtime mode. Error details are echoed to
	// clients only in development.
	Environment environment.Environment `env:"ENVIRONMENT" envDefault:"development"`

	// ErrorTrackingDisabled turns off the best-effort error tracking hook.
	ErrorTrackingDisabled bool `env:"ERROR_TRACKING_DISABLED" envDefault:"false"`

	// TelemetryNamespace prefixes all metric names.
	TelemetryNamespace string `env:"TELEMETRY_NAMESPACE" envDefault:"routekit"`
}

// ExposeErrorDetails reports whether generic error responses should carry
// the underlying error details.
func (c Config) ExposeErrorDetails() bool {
	return c.Environment == environment.Development || c.Environment == "dev"
}

package identity

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/brepkit/identity/persist"
	"github.com/brepkit/identity/resolve"
)

// Option configures the Engine.
type Option func(*engineConfig)

// engineConfig holds configuration for the Engine instance.
type engineConfig struct {
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	policy     resolve.Policy
	policySet  bool
	policyPath string
	configPath string
	store      persist.Store
}

// WithLogger sets a custom logger for the engine.
// If not provided, a default JSON logger writing to stdout is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for rebuild transaction spans.
// If not provided, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for rebuild and resolution metrics.
// If not provided, metrics are disabled.
func WithMeter(meter metric.Meter) Option {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithPolicy sets the resolution policy used by every body's pipeline.
// If not provided, resolve.DefaultPolicy() is used.
func WithPolicy(policy resolve.Policy) Option {
	return func(c *engineConfig) {
		c.policy = policy
		c.policySet = true
	}
}

// WithPolicyFile loads the resolution policy from a YAML file.
// The file is read once when the engine is created; a load or validation
// failure makes NewEngine return an error.
func WithPolicyFile(path string) Option {
	return func(c *engineConfig) {
		c.policyPath = path
	}
}

// WithStore sets the snapshot store used by Save and Restore.
// If not provided, persistence operations return ErrNoStore.
func WithStore(store persist.Store) Option {
	return func(c *engineConfig) {
		c.store = store
	}
}

package config

import (
	"time"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
)

// Config represents the complete application configuration. Values are layered:
// built-in defaults, then the config file, then FORGEIQ_* environment
// variables, then runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Retry     RetryConfig     `mapstructure:"retry"`
	AILink    ailink.Config   `mapstructure:"ailink"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus exporter port. Metrics are also proxied
	// on the main HTTP port at /metrics.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AdmissionConfig sizes the process-wide sliding window.
type AdmissionConfig struct {
	MaxRequests    int           `mapstructure:"max_requests"`
	Window         time.Duration `mapstructure:"window"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// Quota returns the admission quota described by the config.
func (c AdmissionConfig) Quota() admission.Quota {
	return admission.Quota{MaxRequests: c.MaxRequests, Window: c.Window}
}

// RetryConfig shapes the invoker's backoff schedule.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Offset      time.Duration `mapstructure:"offset"`
}

// Backoff returns the configured schedule.
func (c RetryConfig) Backoff() ailink.Backoff {
	return ailink.Backoff{Base: c.BaseDelay, Offset: c.Offset}
}

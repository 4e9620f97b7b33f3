package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Spec          SpecConfig          `mapstructure:"spec"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Audit         AuditConfig         `mapstructure:"audit"`
	KMS           KMSConfig           `mapstructure:"kms"`
	OAuth         OAuthConfig         `mapstructure:"oauth"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	CORS          CORSConfig          `mapstructure:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	BaseURL         string        `mapstructure:"base_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

// SpecConfig locates the OpenAPI document that drives the gateway
type SpecConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig selects and configures the active storage adapter.
// Type is either "keystore" (SQL-backed key/kind store) or
// "collectionstore" (MongoDB document store).
type DatabaseConfig struct {
	Type     string `mapstructure:"type"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"` // collectionstore database name
}

// AuditConfig enables audit logging when LogsName is non-empty
type AuditConfig struct {
	LogsName string `mapstructure:"logs_name"`
}

// KMSConfig enables opaque cursor encryption when all fields are set
type KMSConfig struct {
	Keyring  string `mapstructure:"keyring"`
	Key      string `mapstructure:"key"`
	Location string `mapstructure:"location"`
	Project  string `mapstructure:"project"`
}

// Configured reports whether cursor encryption should be active
func (c KMSConfig) Configured() bool {
	return c.Keyring != "" && c.Key != "" && c.Location != "" && c.Project != ""
}

// OAuthConfig configures the identity collaborator
type OAuthConfig struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	JWKSURL  string `mapstructure:"jwks_url"`
	UPNClaim string `mapstructure:"upn_claim"`
}

// Configured reports whether token verification should be active
func (c OAuthConfig) Configured() bool {
	return c.Issuer != "" && c.JWKSURL != ""
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Provider         string  `mapstructure:"provider"` // sentry, noop
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	Debug            bool    `mapstructure:"debug"`
	SampleRate       float64 `mapstructure:"sample_rate"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

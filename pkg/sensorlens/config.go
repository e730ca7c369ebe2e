package sensorlens

import "github.com/ghalamif/SensorLens/internal/app/config"

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ServiceConfig names the OData service and its credentials.
	ServiceConfig = config.ServiceConfig
	// SessionConfig holds the offline flag and event buffering.
	SessionConfig = config.SessionConfig
	// WorldConfig carries presentation bounds; MaxRecords is the BulkData row limit.
	WorldConfig = config.WorldConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// APIConfig configures the optional HTTP API.
	APIConfig = config.APIConfig
	// JournalConfig configures the optional payload journal.
	JournalConfig = config.JournalConfig
	// SinkConfig selects the optional export sink.
	SinkConfig     = config.SinkConfig
	PostgresConfig = config.PostgresConfig
	InfluxConfig   = config.InfluxConfig
	LogConfig      = config.LogConfig
)

// LoadConfig loads YAML from disk, applies defaults and the SENSORLENS_*
// environment overlay, then validates.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for in-memory YAML without the environment overlay.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw, nil)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overlaid on the file after defaults.
const (
	EnvServiceURL = "SENSORLENS_SERVICE_URL"
	EnvUsername   = "SENSORLENS_USERNAME"
	EnvPassword   = "SENSORLENS_PASSWORD"
	EnvOffline    = "SENSORLENS_OFFLINE"
)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	Session SessionConfig `yaml:"session"`
	World   WorldConfig   `yaml:"world"`
	Metrics MetricsConfig `yaml:"metrics"`
	API     APIConfig     `yaml:"api"`
	Journal JournalConfig `yaml:"journal"`
	Sink    SinkConfig    `yaml:"sink"`
	Log     LogConfig     `yaml:"log"`
}

type ServiceConfig struct {
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ProbeURL       string `yaml:"probe_url"`
	AcceptLanguage string `yaml:"accept_language"`
	LoginMarker    string `yaml:"login_marker"`
}

type SessionConfig struct {
	Offline       bool `yaml:"offline"`
	EventQueueLen int  `yaml:"event_queue_len"`
}

// WorldConfig bounds the presentation. Only MaxRecords is used by the core,
// as the BulkData row limit; the rest is passed through to consumers.
type WorldConfig struct {
	MaxRecords     int     `yaml:"max_records"`
	MaxTimeSeconds float64 `yaml:"max_time_seconds"`
	// SmoothTime selects constant-interval playback. Timestamp-driven playback
	// is not implemented by any consumer yet.
	SmoothTime   *bool   `yaml:"smooth_time"`
	MaxYHeight   float64 `yaml:"max_y_height"`
	MaxZDistance float64 `yaml:"max_z_distance"`
	MaxXWidth    float64 `yaml:"max_x_width"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// APIConfig enables the HTTP API when Addr is set.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig enables the payload journal when Dir is set.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type SinkConfig struct {
	Kind     string         `yaml:"kind"`
	Timeout  time.Duration  `yaml:"timeout"`
	Postgres PostgresConfig `yaml:"postgres"`
	Influx   InfluxConfig   `yaml:"influx"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	SinkNone     = ""
	SinkPostgres = "postgres"
	SinkInflux   = "influx"
)

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, os.LookupEnv)
}

// Parse decodes raw YAML, applies defaults and the environment overlay, then
// validates. lookup may be nil to skip the overlay.
func Parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Session.EventQueueLen == 0 {
		c.Session.EventQueueLen = 256
	}
	if c.World.MaxRecords == 0 {
		c.World.MaxRecords = 300
	}
	if c.World.MaxTimeSeconds == 0 {
		c.World.MaxTimeSeconds = 20
	}
	if c.World.SmoothTime == nil {
		smooth := true
		c.World.SmoothTime = &smooth
	}
	if c.World.MaxYHeight == 0 {
		c.World.MaxYHeight = 6
	}
	if c.World.MaxZDistance == 0 {
		c.World.MaxZDistance = 20
	}
	if c.World.MaxXWidth == 0 {
		c.World.MaxXWidth = 10
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Sink.Timeout == 0 {
		c.Sink.Timeout = 10 * time.Second
	}
	if c.Sink.Postgres.Table == "" {
		c.Sink.Postgres.Table = "sensor_phone_records"
	}
	if c.Sink.Influx.Measurement == "" {
		c.Sink.Influx.Measurement = "sensor_phone"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServiceURL); ok && v != "" {
		c.Service.URL = v
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Service.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Service.Password = v
	}
	if v, ok := lookup(EnvOffline); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOffline, err)
		}
		c.Session.Offline = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Service.URL == "" && !c.Session.Offline {
		return fmt.Errorf("service.url is required unless session.offline is set")
	}
	if c.World.MaxRecords <= 0 {
		return fmt.Errorf("world.max_records must be > 0")
	}
	if c.Session.EventQueueLen <= 0 {
		return fmt.Errorf("session.event_queue_len must be > 0")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}

	switch c.Sink.Kind {
	case SinkNone:
	case SinkPostgres:
		if c.Sink.Postgres.ConnString == "" {
			return fmt.Errorf("sink.postgres.conn_string is required")
		}
	case SinkInflux:
		if c.Sink.Influx.URL == "" || c.Sink.Influx.Org == "" || c.Sink.Influx.Bucket == "" {
			return fmt.Errorf("sink.influx url, org and bucket are required")
		}
	default:
		return fmt.Errorf("sink.kind %q is not supported", c.Sink.Kind)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q is not supported", c.Log.Format)
	}
	return nil
}

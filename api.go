package sensorlens

import (
	base "github.com/ghalamif/SensorLens/pkg/sensorlens"
)

// Re-exported errors for convenience.
var (
	ErrNoData            = base.ErrNoData
	ErrClosed            = base.ErrClosed
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

const (
	BulkData          = base.BulkData
	ConnectivityProbe = base.ConnectivityProbe
	CredentialCheck   = base.CredentialCheck
)

// Type aliases so consumers can import github.com/ghalamif/SensorLens directly.
type (
	Config             = base.Config
	ServiceConfig      = base.ServiceConfig
	SessionConfig      = base.SessionConfig
	WorldConfig        = base.WorldConfig
	MetricsConfig      = base.MetricsConfig
	APIConfig          = base.APIConfig
	JournalConfig      = base.JournalConfig
	SinkConfig         = base.SinkConfig
	PostgresConfig     = base.PostgresConfig
	InfluxConfig       = base.InfluxConfig
	LogConfig          = base.LogConfig
	Flow               = base.Flow
	FlowOption         = base.FlowOption
	ExportOption       = base.ExportOption
	Runtime            = base.Runtime
	RuntimeOption      = base.RuntimeOption
	Batch              = base.Batch
	BatchHandler       = base.BatchHandler
	NormalizedRecord   = base.NormalizedRecord
	RawRecord          = base.RawRecord
	Color              = base.Color
	Event              = base.Event
	ConnectivityResult = base.ConnectivityResult
	FetchOutcome       = base.FetchOutcome
	RequestKind        = base.RequestKind
	Credentials        = base.Credentials
	Status             = base.Status
	Subscription       = base.Subscription
	Decoder            = base.Decoder
	Transport          = base.Transport
	Sink               = base.Sink
	Journal            = base.Journal
	Observability      = base.Observability
	Field              = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func ExportSink(s Sink) ExportOption {
	return base.ExportSink(s)
}

func ExportCallback(name string, fn BatchHandler) ExportOption {
	return base.ExportCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func NewDecoder() *Decoder {
	return base.NewDecoder()
}

func WithTransport(t Transport) RuntimeOption {
	return base.WithTransport(t)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithJournal(j Journal) RuntimeOption {
	return base.WithJournal(j)
}

func WithOfflineBulkSource(fn func() (string, error)) RuntimeOption {
	return base.WithOfflineBulkSource(fn)
}

func WithDecoder(d *Decoder) RuntimeOption {
	return base.WithDecoder(d)
}

// Sink adapters.
func NewCallbackSink(name string, fn BatchHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan *Batch, func()) {
	return base.NewChannelSink(name, buffer)
}

package sensorlens

import (
	"context"
	"fmt"
)

// Flow is a convenience builder: Conf, then Export, then Run.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// ExportOption configures where new batches go.
type ExportOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// Export records sink overrides and builds a Runtime with its session started
// from the configured service.
func (f *Flow) Export(opts ...ExportOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	rt, err := NewRuntime(f.cfg, f.opts...)
	if err != nil {
		return nil, err
	}
	if _, err := rt.StartConfiguredSession(); err != nil {
		_ = rt.Shutdown(context.Background())
		return nil, err
	}
	return rt, nil
}

// Run is a shortcut for Export + RequestBulkData + Runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...ExportOption) error {
	rt, err := f.Export(opts...)
	if err != nil {
		return err
	}
	if err := rt.RequestBulkData(); err != nil {
		_ = rt.Shutdown(context.Background())
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// ExportSink sends new batches to s.
func ExportSink(s Sink) ExportOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// ExportCallback installs a sink built from a callback.
func ExportCallback(name string, fn BatchHandler) ExportOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}

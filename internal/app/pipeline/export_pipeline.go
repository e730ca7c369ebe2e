package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// BatchSource yields the current normalized batch.
type BatchSource interface {
	NormalizedBatch() (*domain.Batch, error)
}

// Exporter writes normalized batches to a sink, skipping a batch it has
// already written.
type Exporter struct {
	sink    ports.Sink
	obs     ports.Observability
	timeout time.Duration
	noData  error

	mu     sync.Mutex
	lastID string
}

// NewExporter builds an exporter. noData is the error a BatchSource returns
// when nothing is cached; it is skipped silently.
func NewExporter(sink ports.Sink, obs ports.Observability, timeout time.Duration, noData error) *Exporter {
	return &Exporter{sink: sink, obs: obs, timeout: timeout, noData: noData}
}

// Export writes batch. Empty batches are skipped.
func (e *Exporter) Export(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if batch.ID != "" && batch.ID == e.lastID {
		return nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := e.sink.WriteBatch(ctx, batch); err != nil {
		e.obs.IncCounter("sensorlens_export_failures_total", 1)
		e.obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: e.sink.Name()},
			ports.Field{Key: "batch_id", Value: batch.ID})
		return err
	}
	e.obs.ObserveLatency("sensorlens_export_latency_seconds", time.Since(start).Seconds())
	e.obs.IncCounter("sensorlens_records_exported_total", float64(batch.Len()))
	e.obs.LogInfo("batch_exported",
		ports.Field{Key: "sink", Value: e.sink.Name()},
		ports.Field{Key: "batch_id", Value: batch.ID},
		ports.Field{Key: "records", Value: batch.Len()})
	e.lastID = batch.ID
	return nil
}

// ExportLatest pulls the current batch from src and exports it.
func (e *Exporter) ExportLatest(ctx context.Context, src BatchSource) error {
	batch, err := src.NormalizedBatch()
	if err != nil {
		if e.noData != nil && errors.Is(err, e.noData) {
			return nil
		}
		return err
	}
	return e.Export(ctx, batch)
}

package observability

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

const (
	MetricFetchTotal       = "sensorlens_fetch_total"
	MetricFetchLatency     = "sensorlens_fetch_latency_seconds"
	MetricParseDefects     = "sensorlens_parse_defects_total"
	MetricNormalizeLatency = "sensorlens_normalize_latency_seconds"
	MetricBatchRecords     = "sensorlens_batch_records"
	MetricEventsDropped    = "sensorlens_events_dropped_total"
	MetricRecordsExported  = "sensorlens_records_exported_total"
	MetricExportFailures   = "sensorlens_export_failures_total"
	MetricExportLatency    = "sensorlens_export_latency_seconds"
	MetricJournalSize      = "sensorlens_journal_size_bytes"
	MetricEventQueueLength = "sensorlens_event_queue_length"
)

// PromObs implements ports.Observability with Prometheus collectors and a
// structured logger.
type PromObs struct {
	log      *slog.Logger
	fetches  *prometheus.CounterVec
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the collectors on reg. A nil logger discards logs.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricFetchTotal,
		Help: "Completed fetches by request kind and outcome class.",
	}, []string{"kind", "class", "offline"})
	fetchLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricFetchLatency,
		Help:    "Duration of online fetch attempts.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	defects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricParseDefects,
		Help: "Fields replaced by a default because they could not be parsed.",
	})
	normalize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricNormalizeLatency,
		Help:    "Time spent parsing, decoding and normalizing a cached payload.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	batchRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricBatchRecords,
		Help: "Records in the most recently normalized batch.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricEventsDropped,
		Help: "Notifications lost because the event queue was full.",
	})
	exported := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricRecordsExported,
		Help: "Normalized records written to the export sink.",
	})
	exportFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricExportFailures,
		Help: "Batches the export sink rejected.",
	})
	exportLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricExportLatency,
		Help:    "Latency of a batch write to the export sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	journalSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricJournalSize,
		Help: "Size of the payload journal on disk.",
	})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricEventQueueLength,
		Help: "Notifications waiting for the dispatcher.",
	})

	reg.MustRegister(fetches, fetchLatency, defects, normalize, batchRecords, dropped,
		exported, exportFailures, exportLatency, journalSize, queueLen)

	return &PromObs{
		log:     logger,
		fetches: fetches,
		counters: map[string]prometheus.Counter{
			MetricParseDefects:    defects,
			MetricEventsDropped:   dropped,
			MetricRecordsExported: exported,
			MetricExportFailures:  exportFailures,
		},
		gauges: map[string]prometheus.Gauge{
			MetricBatchRecords:     batchRecords,
			MetricJournalSize:      journalSize,
			MetricEventQueueLength: queueLen,
		},
		histos: map[string]prometheus.Observer{
			MetricFetchLatency:     fetchLatency,
			MetricNormalizeLatency: normalize,
			MetricExportLatency:    exportLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	p.log.Error(msg, args...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordFetch(o domain.FetchOutcome) {
	offline := "false"
	if o.Offline {
		offline = "true"
	}
	p.fetches.WithLabelValues(o.Kind.String(), o.Class.String(), offline).Inc()
	if !o.Offline && o.Duration > 0 {
		p.ObserveLatency(MetricFetchLatency, o.Duration.Seconds())
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)

package sensorlens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/SensorLens/internal/adapters/httpapi"
	"github.com/ghalamif/SensorLens/internal/adapters/journal"
	"github.com/ghalamif/SensorLens/internal/adapters/observability"
	"github.com/ghalamif/SensorLens/internal/adapters/queue"
	"github.com/ghalamif/SensorLens/internal/adapters/sink"
	"github.com/ghalamif/SensorLens/internal/adapters/transport"
	"github.com/ghalamif/SensorLens/internal/app/config"
	"github.com/ghalamif/SensorLens/internal/app/coordinator"
	"github.com/ghalamif/SensorLens/internal/app/events"
	"github.com/ghalamif/SensorLens/internal/app/fetch"
	"github.com/ghalamif/SensorLens/internal/app/pipeline"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	transport     Transport
	observability Observability
	sink          Sink
	journal       Journal
	offlineBulk   func() (string, error)
	decoder       *Decoder
	registry      *prometheus.Registry
	logger        *slog.Logger
	logOutput     io.Writer
	eventQueue    ports.EventQueue
}

// WithTransport replaces the HTTP transport, e.g. with a recording fake.
func WithTransport(t Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = t
	}
}

// WithObservability plugs in a custom logging and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithSink exports every new batch to s instead of the configured sink.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithJournal supplies a journal instead of opening cfg.Journal.Dir. The
// runtime does not close a journal it did not open.
func WithJournal(j Journal) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.journal = j
	}
}

// WithOfflineBulkSource provides the payload served for BulkData in offline
// mode. Without it the latest journaled payload is used, if any.
func WithOfflineBulkSource(fn func() (string, error)) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.offlineBulk = fn
	}
}

// WithDecoder overrides the record decoder (time zone, clock).
func WithDecoder(d *Decoder) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.decoder = d
	}
}

// WithRegistry registers the default metrics on reg and serves it on the
// metrics endpoint.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithLogOutput redirects the default logger; it is ignored with WithLogger.
func WithLogOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logOutput = w
	}
}

// WithEventQueue injects the buffer between the session and its subscribers.
func WithEventQueue(q ports.EventQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.eventQueue = q
	}
}

// Runtime wires transport, fetch orchestration, the session coordinator and
// its event bus, plus the optional journal, export sink, metrics server and
// HTTP API.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	registry *prometheus.Registry
	queue    ports.EventQueue
	bus      *events.Bus
	coord    *coordinator.Coordinator
	journal  ports.Journal
	sink     ports.Sink
	exporter *pipeline.Exporter
	db       *sql.DB
	influx   influxdb2.Client

	ownsJournal bool
	exportSub   *events.Subscription

	mu          sync.Mutex
	started     bool
	metricsSrv  *http.Server
	apiSrv      *http.Server
	gaugeStopCh chan struct{}
}

// NewRuntime bootstraps the default adapters (HTTP transport, in-memory event
// queue, Prometheus observability, plus the journal and sink cfg enables).
// The session API is usable as soon as NewRuntime returns; Start only adds the
// HTTP servers.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{cfg: cfg}

	rt.registry = overrides.registry
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger := overrides.logger
		if logger == nil {
			out := overrides.logOutput
			if out == nil {
				out = os.Stderr
			}
			logger = observability.NewLogger(cfg.Log.Level, cfg.Log.Format, out)
		}
		rt.obs = observability.NewPromObs(rt.registry, logger)
	}

	tr := overrides.transport
	if tr == nil {
		tr = transport.NewHTTPTransport(nil)
	}

	rt.journal = overrides.journal
	if rt.journal == nil && cfg.Journal.Dir != "" {
		j, err := journal.NewFileJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		rt.journal = j
		rt.ownsJournal = true
	}

	offlineBulk := overrides.offlineBulk
	if offlineBulk == nil && rt.journal != nil {
		offlineBulk = latestJournaled(rt.journal)
	}

	var err error
	rt.sink = overrides.sink
	if rt.sink == nil {
		rt.sink, err = rt.openSink()
		if err != nil {
			rt.closeResources()
			return nil, err
		}
	}
	if rt.sink != nil {
		rt.exporter = pipeline.NewExporter(rt.sink, rt.obs, cfg.Sink.Timeout, coordinator.ErrNoData)
	}

	rt.queue = overrides.eventQueue
	if rt.queue == nil {
		rt.queue = queue.NewMemQueue(cfg.Session.EventQueueLen)
	}
	rt.bus = events.NewBus(rt.queue, rt.obs)
	rt.bus.Start()

	orch := fetch.New(tr, rt.obs, fetch.Options{
		ProbeURL:       cfg.Service.ProbeURL,
		AcceptLanguage: cfg.Service.AcceptLanguage,
		LoginMarker:    cfg.Service.LoginMarker,
		OfflineBulk:    offlineBulk,
	})
	rt.coord = coordinator.New(orch, rt.bus, rt.obs, coordinator.Options{
		Decoder: overrides.decoder,
		Journal: rt.journal,
	})

	if rt.exporter != nil {
		rt.exportSub, err = rt.bus.Subscribe(domain.EventBatchAvailable, rt.exportLatest)
		if err != nil {
			_ = rt.Shutdown(context.Background())
			return nil, err
		}
	}

	return rt, nil
}

func (r *Runtime) openSink() (ports.Sink, error) {
	sc := r.cfg.Sink
	switch sc.Kind {
	case config.SinkNone:
		return nil, nil
	case config.SinkPostgres:
		db, err := sql.Open("postgres", sc.Postgres.ConnString)
		if err != nil {
			return nil, err
		}
		r.db = db
		return sink.NewPostgresSink(db, sc.Postgres.Table), nil
	case config.SinkInflux:
		r.influx = influxdb2.NewClient(sc.Influx.URL, sc.Influx.Token)
		return sink.NewInfluxSink(r.influx, sc.Influx.Org, sc.Influx.Bucket, sc.Influx.Measurement), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", sc.Kind)
	}
}

func latestJournaled(j ports.Journal) func() (string, error) {
	return func() (string, error) {
		_, payload, err := j.Latest()
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}
}

// exportLatest runs on the event dispatcher, so it may call back into the
// session. Failures are logged and counted by the exporter.
func (r *Runtime) exportLatest(domain.Event) {
	_ = r.exporter.ExportLatest(context.Background(), r.coord)
}

// StartSession begins a session against serviceURL. world.MaxRecords becomes
// the BulkData row limit. The offline flag is reset to cfg.Session.Offline,
// replacing any SetOfflineMode call made before the session started; call
// SetOfflineMode afterwards to change it. It returns false, changing nothing,
// if a session was already running.
func (r *Runtime) StartSession(serviceURL, username, password string, world WorldConfig) (bool, error) {
	if world.MaxRecords <= 0 {
		world.MaxRecords = r.cfg.World.MaxRecords
	}
	target := fetch.Target{
		ServiceURL: serviceURL,
		Username:   username,
		Password:   password,
		RowLimit:   world.MaxRecords,
	}
	return r.coord.StartSession(target, r.cfg.Session.Offline)
}

// StartConfiguredSession starts a session from cfg.Service and cfg.World.
func (r *Runtime) StartConfiguredSession() (bool, error) {
	s := r.cfg.Service
	return r.StartSession(s.URL, s.Username, s.Password, r.cfg.World)
}

func (r *Runtime) SetOfflineMode(offline bool) error {
	return r.coord.SetOfflineMode(offline)
}

// RequestBulkData issues one BulkData fetch. A successful response replaces
// the cached payload and fires OnBatchAvailable handlers.
func (r *Runtime) RequestBulkData() error {
	return r.coord.RequestBulkData()
}

// NormalizedBatch parses and normalizes the cached payload. It returns
// ErrNoData when nothing usable is cached.
func (r *Runtime) NormalizedBatch() (*Batch, error) {
	return r.coord.NormalizedBatch()
}

// CheckConnectivity runs the probe then the credential check. Zero-value
// credentials reuse the session target.
func (r *Runtime) CheckConnectivity(creds Credentials) error {
	return r.coord.CheckConnectivity(creds)
}

func (r *Runtime) ConnectivityResult() (ConnectivityResult, error) {
	return r.coord.ConnectivityResult()
}

func (r *Runtime) LastOutcome(kind RequestKind) (FetchOutcome, bool) {
	return r.coord.LastOutcome(kind)
}

func (r *Runtime) Status() (Status, error) {
	return r.coord.Status()
}

// OnBatchAvailable registers fn for new payloads. Handlers run in
// registration order on a single goroutine and may call the Runtime.
func (r *Runtime) OnBatchAvailable(fn func(Event)) (*Subscription, error) {
	return r.bus.Subscribe(domain.EventBatchAvailable, fn)
}

// OnConnectivityResult registers fn for completed connectivity checks.
func (r *Runtime) OnConnectivityResult(fn func(Event)) (*Subscription, error) {
	return r.bus.Subscribe(domain.EventConnectivityResult, fn)
}

// Handler returns the HTTP API without starting a server, for embedding.
func (r *Runtime) Handler() http.Handler {
	return httpapi.NewRouter(r.coord, r.obs)
}

// Gatherer exposes the registry the default metrics are registered on.
func (r *Runtime) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Start launches the metrics server and, when cfg.API.Addr is set, the HTTP
// API. It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	r.started = true

	r.startMetrics()
	if r.cfg.API.Addr != "" {
		r.apiSrv = &http.Server{
			Addr:    r.cfg.API.Addr,
			Handler: r.Handler(),
		}
		r.serve(r.apiSrv, "api_server_exited")
	}
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled, then shuts down.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the servers and the session, drains pending notifications,
// then releases the journal and sink connections.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.mu.Lock()
	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}
	servers := []*http.Server{r.apiSrv, r.metricsSrv}
	r.apiSrv, r.metricsSrv = nil, nil
	r.mu.Unlock()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.exportSub != nil {
		r.exportSub.Unsubscribe()
	}
	if r.coord != nil {
		if err := r.coord.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.bus != nil {
		if err := r.bus.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, r.closeResources())
	return errors.Join(errs...)
}

func (r *Runtime) closeResources() error {
	var errs []error
	if r.ownsJournal && r.journal != nil {
		if err := r.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		r.ownsJournal = false
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	if r.influx != nil {
		r.influx.Close()
		r.influx = nil
	}
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}
	r.serve(r.metricsSrv, "metrics_server_exited")

	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)
}

func (r *Runtime) serve(srv *http.Server, exitMsg string) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError(exitMsg, err, ports.Field{Key: "addr", Value: srv.Addr})
		}
	}()
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(observability.MetricEventQueueLength, float64(r.queue.Len()))
			if r.journal != nil {
				r.obs.SetGauge(observability.MetricJournalSize, float64(r.journal.Stats().SizeBytes))
			}
		}
	}
}

// Package coordinator owns the mutable session state: the cached BulkData
// payload, the last outcome per request kind, the offline flag and the
// connectivity checker. All of it is touched only by the coordinator's own
// goroutine; callers reach it through methods that post closures to it.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/SensorLens/internal/app/connectivity"
	"github.com/ghalamif/SensorLens/internal/app/events"
	"github.com/ghalamif/SensorLens/internal/app/fetch"
	"github.com/ghalamif/SensorLens/internal/app/transform"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

var (
	// ErrNoData means no parsable BulkData payload is cached.
	ErrNoData = errors.New("coordinator: no batch data available")
	ErrClosed = errors.New("coordinator: closed")
)

const opsBuffer = 64

// Credentials select the service a connectivity check runs against. The zero
// value reuses the current session target.
type Credentials struct {
	ServiceURL string
	Username   string
	Password   string
}

func (c Credentials) isZero() bool {
	return c.ServiceURL == "" && c.Username == "" && c.Password == ""
}

type Options struct {
	Decoder *transform.Decoder
	// Journal, when set, receives every online BulkData payload.
	Journal    ports.Journal
	NewBatchID func() string
	Now        func() time.Time
}

// Status is a read-only view of the session.
type Status struct {
	SessionStarted bool             `json:"session_started"`
	Offline        bool             `json:"offline"`
	ServiceURL     string           `json:"service_url,omitempty"`
	Username       string           `json:"username,omitempty"`
	RowLimit       int              `json:"row_limit"`
	PayloadID      string           `json:"payload_id,omitempty"`
	ConnState      domain.ConnState `json:"conn_state"`
}

type Coordinator struct {
	orch *fetch.Orchestrator
	bus  *events.Bus
	obs  ports.Observability
	opts Options

	ops       chan func()
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// owned by the run goroutine
	session   bool
	offline   bool
	target    fetch.Target
	payload   string
	payloadID string
	last      map[domain.RequestKind]domain.FetchOutcome
	checker   *connectivity.Checker
	checkGen  uint64
}

func New(orch *fetch.Orchestrator, bus *events.Bus, obs ports.Observability, opts Options) *Coordinator {
	if opts.Decoder == nil {
		opts.Decoder = transform.NewDecoder()
	}
	if opts.NewBatchID == nil {
		opts.NewBatchID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		orch:    orch,
		bus:     bus,
		obs:     obs,
		opts:    opts,
		ops:     make(chan func(), opsBuffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		last:    make(map[domain.RequestKind]domain.FetchOutcome),
		checker: connectivity.New(),
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case fn := <-c.ops:
			fn()
		}
	}
}

func (c *Coordinator) post(fn func()) error {
	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}
	select {
	case c.ops <- fn:
		return nil
	case <-c.stopCh:
		return ErrClosed
	}
}

// call runs fn on the coordinator goroutine and waits for it.
func (c *Coordinator) call(fn func()) error {
	done := make(chan struct{})
	if err := c.post(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.doneCh:
		return ErrClosed
	}
}

// StartSession records the target. It is a no-op, reporting false, when a
// session already exists.
func (c *Coordinator) StartSession(target fetch.Target, offline bool) (bool, error) {
	var started bool
	err := c.call(func() {
		if c.session {
			return
		}
		c.session = true
		c.target = target
		c.offline = offline
		started = true
		c.obs.LogInfo("session_started",
			ports.Field{Key: "service_url", Value: target.ServiceURL},
			ports.Field{Key: "user", Value: target.Username},
			ports.Field{Key: "offline", Value: offline})
	})
	return started, err
}

func (c *Coordinator) SetOfflineMode(offline bool) error {
	return c.call(func() {
		if c.offline != offline {
			c.obs.LogInfo("offline_mode_changed", ports.Field{Key: "offline", Value: offline})
		}
		c.offline = offline
	})
}

// RequestBulkData issues one BulkData fetch. Completion is announced with an
// EventBatchAvailable event; failures only update LastOutcome.
func (c *Coordinator) RequestBulkData() error {
	return c.post(func() {
		c.issue(domain.BulkData, c.onBulk)
	})
}

// issue runs kind through the orchestrator. Offline answers arrive on this
// goroutine before Fetch returns; online ones are posted back.
func (c *Coordinator) issue(kind domain.RequestKind, handle func(domain.FetchOutcome)) {
	c.orch.Fetch(c.ctx, kind, c.target, c.offline, func(out domain.FetchOutcome) {
		if out.Offline {
			handle(out)
			return
		}
		if err := c.post(func() { handle(out) }); err != nil {
			c.obs.LogWarn("fetch_result_discarded", ports.Field{Key: "kind", Value: kind.String()})
		}
	})
}

func (c *Coordinator) onBulk(out domain.FetchOutcome) {
	c.last[domain.BulkData] = out
	if !out.OK {
		return
	}
	c.payload = out.Body
	c.payloadID = c.opts.NewBatchID()

	if c.opts.Journal != nil && !out.Offline {
		id, err := c.opts.Journal.Append([]byte(out.Body))
		if err != nil {
			c.obs.LogError("journal_append_failed", err)
		} else {
			c.obs.SetGauge("sensorlens_journal_size_bytes", float64(c.opts.Journal.Stats().SizeBytes))
			c.obs.LogInfo("payload_journaled", ports.Field{Key: "entry", Value: uint64(id)})
		}
	}

	c.bus.Publish(domain.Event{Kind: domain.EventBatchAvailable, At: c.opts.Now(), BatchID: c.payloadID})
}

// NormalizedBatch parses the cached payload. Parsing is repeated on every
// call. An unparsable payload is dropped from the cache and reported as
// ErrNoData from then on.
func (c *Coordinator) NormalizedBatch() (*domain.Batch, error) {
	var (
		batch *domain.Batch
		err   error
	)
	if cerr := c.call(func() {
		batch, err = c.buildBatch()
	}); cerr != nil {
		return nil, cerr
	}
	return batch, err
}

func (c *Coordinator) buildBatch() (*domain.Batch, error) {
	if c.payload == "" {
		return nil, ErrNoData
	}

	start := time.Now()
	batch, defects, err := transform.BuildBatch(c.payloadID, c.payload, c.target.RowLimit, c.opts.Decoder)
	if err != nil {
		if errors.Is(err, transform.ErrUnparsable) {
			c.obs.LogError("bulk_payload_unparsable", err, ports.Field{Key: "batch_id", Value: c.payloadID})
			c.payload, c.payloadID = "", ""
			return nil, ErrNoData
		}
		return nil, err
	}

	c.obs.ObserveLatency("sensorlens_normalize_latency_seconds", time.Since(start).Seconds())
	c.obs.IncCounter("sensorlens_parse_defects_total", float64(defects))
	c.obs.SetGauge("sensorlens_batch_records", float64(batch.Len()))
	return batch, nil
}

// CheckConnectivity starts a fresh check. Non-zero credentials replace the
// target without starting a session. The result is announced with an
// EventConnectivityResult event.
func (c *Coordinator) CheckConnectivity(creds Credentials) error {
	return c.post(func() {
		if !creds.isZero() {
			c.target.ServiceURL = creds.ServiceURL
			c.target.Username = creds.Username
			c.target.Password = creds.Password
		}
		c.checkGen++
		c.step(c.checker.Start(c.offline), c.checkGen)
	})
}

func (c *Coordinator) step(a connectivity.Action, gen uint64) {
	switch a {
	case connectivity.ActionProbe:
		c.issue(domain.ConnectivityProbe, func(out domain.FetchOutcome) {
			c.last[domain.ConnectivityProbe] = out
			if gen != c.checkGen {
				return
			}
			c.step(c.checker.ProbeDone(out), gen)
		})
	case connectivity.ActionCredentialCheck:
		c.issue(domain.CredentialCheck, func(out domain.FetchOutcome) {
			c.last[domain.CredentialCheck] = out
			if gen != c.checkGen {
				return
			}
			if res, settled := c.checker.CredentialDone(out); settled {
				c.publishResult(res)
			}
		})
	case connectivity.ActionNone:
		if res := c.checker.Result(); res.State.Terminal() {
			c.publishResult(res)
		}
	}
}

func (c *Coordinator) publishResult(res domain.ConnectivityResult) {
	c.obs.LogInfo("connectivity_checked",
		ports.Field{Key: "state", Value: res.State.String()},
		ports.Field{Key: "message", Value: res.Message})
	c.bus.Publish(domain.Event{Kind: domain.EventConnectivityResult, At: c.opts.Now(), Connectivity: res})
}

func (c *Coordinator) ConnectivityResult() (domain.ConnectivityResult, error) {
	var res domain.ConnectivityResult
	err := c.call(func() { res = c.checker.Result() })
	return res, err
}

// LastOutcome returns the most recent outcome for kind.
func (c *Coordinator) LastOutcome(kind domain.RequestKind) (domain.FetchOutcome, bool) {
	var (
		out domain.FetchOutcome
		ok  bool
	)
	if err := c.call(func() { out, ok = c.last[kind] }); err != nil {
		return domain.FetchOutcome{}, false
	}
	return out, ok
}

func (c *Coordinator) Status() (Status, error) {
	var st Status
	err := c.call(func() {
		st = Status{
			SessionStarted: c.session,
			Offline:        c.offline,
			ServiceURL:     c.target.ServiceURL,
			Username:       c.target.Username,
			RowLimit:       c.target.RowLimit,
			PayloadID:      c.payloadID,
			ConnState:      c.checker.State(),
		}
	})
	return st, err
}

// Close stops the coordinator and cancels in-flight requests. Their results
// are discarded.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.stopCh)
	})
	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

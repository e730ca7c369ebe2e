package coordinator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/SensorLens/internal/adapters/queue"
	"github.com/ghalamif/SensorLens/internal/app/connectivity"
	"github.com/ghalamif/SensorLens/internal/app/events"
	"github.com/ghalamif/SensorLens/internal/app/fetch"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

const payload = `{"d":{"results":[
 {"G_DEVICE":"a","G_CREATED":"/Date(1465941656507)/","C_TIMESTAMP":"/Date(1465941487000)/","C_ALTITUDE":"30","C_LONGITUDE":"1","C_LATITUDE":"1","C_ACCELEROMETERX":"1","C_ACCELEROMETERY":"0","C_ACCELEROMETERZ":"0","C_GYROSCOPEX":"0","C_GYROSCOPEY":"0","C_GYROSCOPEZ":"0"},
 {"G_DEVICE":"a","G_CREATED":"/Date(1465941656507)/","C_TIMESTAMP":"/Date(1465941485000)/","C_ALTITUDE":"10","C_LONGITUDE":"1","C_LATITUDE":"1","C_ACCELEROMETERX":"0","C_ACCELEROMETERY":"1","C_ACCELEROMETERZ":"0","C_GYROSCOPEX":"0","C_GYROSCOPEY":"0","C_GYROSCOPEZ":"0"}
]}}`

type routeTransport struct {
	mu     sync.Mutex
	calls  int
	routes func(url string) (*ports.Response, error)
}

func (r *routeTransport) Get(_ context.Context, url string, _ http.Header) (*ports.Response, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.routes(url)
}

func (r *routeTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubObs struct {
	mu     sync.Mutex
	errors map[string]int
}

func (s *stubObs) LogInfo(string, ...ports.Field) {}
func (s *stubObs) LogWarn(string, ...ports.Field) {}
func (s *stubObs) LogError(msg string, _ error, _ ...ports.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors == nil {
		s.errors = map[string]int{}
	}
	s.errors[msg]++
}
func (s *stubObs) IncCounter(string, float64)      {}
func (s *stubObs) ObserveLatency(string, float64)  {}
func (s *stubObs) SetGauge(string, float64)        {}
func (s *stubObs) RecordFetch(domain.FetchOutcome) {}

func (s *stubObs) errorCount(msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[msg]
}

type memJournal struct {
	mu      sync.Mutex
	entries [][]byte
}

func (j *memJournal) Append(p []byte) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, append([]byte(nil), p...))
	return ports.JournalEntryID(len(j.entries)), nil
}

func (j *memJournal) Latest() (ports.JournalEntryID, []byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return 0, nil, errors.New("empty")
	}
	return ports.JournalEntryID(len(j.entries)), j.entries[len(j.entries)-1], nil
}

func (j *memJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{Entries: uint64(len(j.entries))}
}

func (j *memJournal) Close() error { return nil }

type harness struct {
	coord     *Coordinator
	bus       *events.Bus
	transport *routeTransport
	obs       *stubObs
	journal   *memJournal
}

func newHarness(t *testing.T, routes func(string) (*ports.Response, error)) *harness {
	t.Helper()
	obs := &stubObs{}
	tr := &routeTransport{routes: routes}
	bus := events.NewBus(queue.NewMemQueue(16), obs)
	bus.Start()
	j := &memJournal{}
	orch := fetch.New(tr, obs, fetch.Options{})
	c := New(orch, bus, obs, Options{Journal: j, NewBatchID: func() string { return "batch-1" }})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
		_ = bus.Close(ctx)
	})
	return &harness{coord: c, bus: bus, transport: tr, obs: obs, journal: j}
}

func ok(body string) (*ports.Response, error) {
	return &ports.Response{StatusCode: 200, Body: []byte(body)}, nil
}

func waitEvent(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return domain.Event{}
}

var target = fetch.Target{ServiceURL: "https://svc.example/odata", Username: "u", Password: "p", RowLimit: 300}

func TestBulkDataAvailableAndNormalized(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) { return ok(payload) })

	got := make(chan domain.Event, 1)
	var batchSeen *domain.Batch
	if _, err := h.bus.Subscribe(domain.EventBatchAvailable, func(e domain.Event) {
		// handlers may call back into the coordinator
		b, err := h.coord.NormalizedBatch()
		if err == nil {
			batchSeen = b
		}
		got <- e
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := h.coord.NormalizedBatch(); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData before any fetch, got %v", err)
	}
	if started, err := h.coord.StartSession(target, false); err != nil || !started {
		t.Fatalf("start session: %v started=%v", err, started)
	}
	if err := h.coord.RequestBulkData(); err != nil {
		t.Fatalf("request: %v", err)
	}

	e := waitEvent(t, got)
	if e.BatchID != "batch-1" {
		t.Fatalf("unexpected batch id %q", e.BatchID)
	}
	if batchSeen == nil || batchSeen.Len() != 2 {
		t.Fatalf("expected batch from handler, got %+v", batchSeen)
	}
	if batchSeen.Records[0].Altitude != 10 || batchSeen.Records[0].AltitudeN != 0 || batchSeen.Records[1].AltitudeN != 1 {
		t.Fatalf("batch not sorted and normalized: %+v", batchSeen.Records)
	}

	again, err := h.coord.NormalizedBatch()
	if err != nil || again.Len() != 2 || again.ID != "batch-1" {
		t.Fatalf("reparse should yield the same batch: %+v %v", again, err)
	}

	out, found := h.coord.LastOutcome(domain.BulkData)
	if !found || out.Class != domain.Success {
		t.Fatalf("unexpected last outcome %+v", out)
	}
	if h.journal.Stats().Entries != 1 {
		t.Fatalf("expected payload to be journaled")
	}
}

func TestUnparsablePayloadInvalidatesCache(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) { return ok("<html>maintenance</html>") })

	got := make(chan domain.Event, 1)
	if _, err := h.bus.Subscribe(domain.EventBatchAvailable, func(e domain.Event) { got <- e }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.coord.StartSession(target, false)
	h.coord.RequestBulkData()
	waitEvent(t, got)

	for i := 0; i < 2; i++ {
		if _, err := h.coord.NormalizedBatch(); !errors.Is(err, ErrNoData) {
			t.Fatalf("call %d: expected ErrNoData, got %v", i, err)
		}
	}
	if n := h.obs.errorCount("bulk_payload_unparsable"); n != 1 {
		t.Fatalf("expected unparsable payload to be logged once, got %d", n)
	}
}

func TestFailedBulkDataKeepsCacheEmpty(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) {
		return ok("<html><title>HANA Login</title></html>")
	})
	h.coord.StartSession(target, false)
	h.coord.RequestBulkData()

	deadline := time.Now().Add(2 * time.Second)
	for {
		out, found := h.coord.LastOutcome(domain.BulkData)
		if found {
			if out.Class != domain.ApplicationFailure {
				t.Fatalf("expected application failure, got %s", out.Class)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bulk outcome never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := h.coord.NormalizedBatch(); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestConnectivityCheckOnline(t *testing.T) {
	h := newHarness(t, func(url string) (*ports.Response, error) {
		if url == fetch.DefaultProbeURL {
			return nil, errors.New("no route to host")
		}
		if !strings.Contains(url, "$top=1&$format=json") {
			t.Errorf("unexpected credential url %s", url)
		}
		return ok(`{"d":{"results":[]}}`)
	})

	got := make(chan domain.Event, 1)
	h.bus.Subscribe(domain.EventConnectivityResult, func(e domain.Event) { got <- e })

	if err := h.coord.CheckConnectivity(Credentials{ServiceURL: target.ServiceURL, Username: "u", Password: "p"}); err != nil {
		t.Fatalf("check: %v", err)
	}
	res := waitEvent(t, got).Connectivity
	if !res.Passed || res.State != domain.ConnPassed {
		t.Fatalf("expected pass after failed probe and good credentials, got %+v", res)
	}
	if res.Log[1] != connectivity.MsgProbeFailed {
		t.Fatalf("probe failure should be logged, got %q", res.Log)
	}
	if h.transport.count() != 2 {
		t.Fatalf("expected probe and credential check, got %d calls", h.transport.count())
	}

	probe, _ := h.coord.LastOutcome(domain.ConnectivityProbe)
	if probe.Class != domain.TransportFailure {
		t.Fatalf("unexpected probe outcome %+v", probe)
	}
	st, _ := h.coord.Status()
	if st.SessionStarted || st.ServiceURL != target.ServiceURL {
		t.Fatalf("check must set the target without starting a session: %+v", st)
	}
}

func TestConnectivityCheckCredentialRejected(t *testing.T) {
	h := newHarness(t, func(url string) (*ports.Response, error) {
		if url == fetch.DefaultProbeURL {
			return ok("<!doctype html>")
		}
		return ok("<html><title>HANA Login</title></html>")
	})
	got := make(chan domain.Event, 1)
	h.bus.Subscribe(domain.EventConnectivityResult, func(e domain.Event) { got <- e })

	h.coord.StartSession(target, false)
	h.coord.CheckConnectivity(Credentials{})
	res := waitEvent(t, got).Connectivity
	if res.Passed || res.Message != fetch.LoginFailedDiagnostic {
		t.Fatalf("expected credential failure, got %+v", res)
	}
}

func TestOfflineModeIsDeterministic(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) {
		t.Errorf("transport must not be used offline")
		return nil, errors.New("offline")
	})
	got := make(chan domain.Event, 4)
	h.bus.Subscribe(domain.EventConnectivityResult, func(e domain.Event) { got <- e })

	h.coord.StartSession(target, true)
	for i := 0; i < 2; i++ {
		h.coord.CheckConnectivity(Credentials{})
		res := waitEvent(t, got).Connectivity
		if !res.Passed || res.Message != connectivity.MsgOfflineSkipped {
			t.Fatalf("unexpected offline result %+v", res)
		}
	}

	h.coord.RequestBulkData()
	if _, err := h.coord.NormalizedBatch(); !errors.Is(err, ErrNoData) {
		t.Fatalf("offline bulk data without a source must stay empty, got %v", err)
	}

	// toggling offline after session start is honored for single requests
	h.coord.SetOfflineMode(false)
	h.coord.SetOfflineMode(true)
	st, _ := h.coord.Status()
	if !st.Offline {
		t.Fatalf("expected offline status")
	}
}

func TestStartSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) { return ok("") })

	if started, _ := h.coord.StartSession(target, false); !started {
		t.Fatalf("first start should create the session")
	}
	other := target
	other.ServiceURL = "https://other"
	if started, _ := h.coord.StartSession(other, true); started {
		t.Fatalf("second start must be a no-op")
	}
	st, _ := h.coord.Status()
	if st.ServiceURL != target.ServiceURL || st.Offline {
		t.Fatalf("session overwritten: %+v", st)
	}
}

func TestClosedCoordinator(t *testing.T) {
	h := newHarness(t, func(string) (*ports.Response, error) { return ok("") })
	if err := h.coord.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.coord.RequestBulkData(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := h.coord.NormalizedBatch(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := h.coord.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

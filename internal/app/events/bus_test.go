package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/SensorLens/internal/adapters/queue"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

type stubObs struct {
	mu      sync.Mutex
	dropped float64
}

func (s *stubObs) LogInfo(string, ...ports.Field)         {}
func (s *stubObs) LogWarn(string, ...ports.Field)         {}
func (s *stubObs) LogError(string, error, ...ports.Field) {}
func (s *stubObs) ObserveLatency(string, float64)         {}
func (s *stubObs) SetGauge(string, float64)               {}
func (s *stubObs) RecordFetch(domain.FetchOutcome)        {}
func (s *stubObs) IncCounter(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "sensorlens_events_dropped_total" {
		s.dropped += v
	}
}

func closeBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		t.Fatalf("close bus: %v", err)
	}
}

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	b := NewBus(queue.NewMemQueue(16), &stubObs{})

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Handler {
		return func(e domain.Event) {
			mu.Lock()
			order = append(order, name+":"+e.BatchID)
			mu.Unlock()
		}
	}
	for _, name := range []string{"first", "second", "third"} {
		if _, err := b.Subscribe(domain.EventBatchAvailable, record(name)); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if _, err := b.Subscribe(domain.EventConnectivityResult, record("conn")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Start()
	b.Publish(domain.Event{Kind: domain.EventBatchAvailable, BatchID: "a"})
	b.Publish(domain.Event{Kind: domain.EventBatchAvailable, BatchID: "b"})
	closeBus(t, b)

	want := []string{"first:a", "second:a", "third:a", "first:b", "second:b", "third:b"}
	if len(order) != len(want) {
		t.Fatalf("unexpected deliveries %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(queue.NewMemQueue(16), &stubObs{})

	var calls int
	var sub *Subscription
	sub, err := b.Subscribe(domain.EventBatchAvailable, func(domain.Event) {
		calls++
		sub.Unsubscribe()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Start()
	b.Publish(domain.Event{Kind: domain.EventBatchAvailable})
	b.Publish(domain.Event{Kind: domain.EventBatchAvailable})
	closeBus(t, b)

	if calls != 1 {
		t.Fatalf("expected a single delivery before unsubscribe, got %d", calls)
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
	sub.Unsubscribe()
}

func TestBusDropsWhenQueueFull(t *testing.T) {
	obs := &stubObs{}
	b := NewBus(queue.NewMemQueue(1), obs)

	if !b.Publish(domain.Event{Kind: domain.EventBatchAvailable}) {
		t.Fatalf("first publish should fit")
	}
	if b.Publish(domain.Event{Kind: domain.EventBatchAvailable}) {
		t.Fatalf("second publish should be dropped")
	}
	if obs.dropped != 1 {
		t.Fatalf("expected one dropped event, got %f", obs.dropped)
	}
	closeBus(t, b)
}

func TestBusRejectsNilHandler(t *testing.T) {
	b := NewBus(queue.NewMemQueue(1), &stubObs{})
	if _, err := b.Subscribe(domain.EventBatchAvailable, nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

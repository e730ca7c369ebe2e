// Package events delivers coordinator notifications to subscribers.
//
// Events are buffered in a ports.EventQueue and handed to subscribers by a
// single dispatcher goroutine, so handlers may call back into the coordinator
// without deadlocking it. Subscribers of a kind are called in registration
// order, one event at a time.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

const dispatchBatch = 64

type Handler func(domain.Event)

type Subscription struct {
	bus     *Bus
	kind    domain.EventKind
	handler Handler
	active  atomic.Bool
}

// Unsubscribe stops delivery to this subscription. Safe to call more than once
// and from inside the handler itself.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

type Bus struct {
	queue ports.EventQueue
	obs   ports.Observability

	mu   sync.Mutex
	subs []*Subscription

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewBus(q ports.EventQueue, obs ports.Observability) *Bus {
	return &Bus{
		queue:  q,
		obs:    obs,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Subscribe registers h for events of kind.
func (b *Bus) Subscribe(kind domain.EventKind, h Handler) (*Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("events: handler is required")
	}
	s := &Subscription{bus: b, kind: kind, handler: h}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s, nil
}

// Publish enqueues e for delivery. A full queue drops the event.
func (b *Bus) Publish(e domain.Event) bool {
	if !b.queue.Enqueue(e) {
		b.obs.IncCounter("sensorlens_events_dropped_total", 1)
		b.obs.LogWarn("event_dropped",
			ports.Field{Key: "kind", Value: e.Kind.String()},
			ports.Field{Key: "queue_len", Value: b.queue.Len()})
		return false
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// Start launches the dispatcher. Events published earlier are delivered once
// it runs.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

// Close stops the dispatcher after delivering what is already queued.
func (b *Bus) Close(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.startOnce.Do(func() {
		close(b.doneCh)
	})

	select {
	case <-b.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer close(b.doneCh)
	for {
		select {
		case <-b.stopCh:
			b.drain()
			return
		case <-b.wake:
			b.drain()
		}
	}
}

func (b *Bus) drain() {
	for {
		batch := b.queue.DequeueBatch(dispatchBatch)
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			b.deliver(e)
		}
	}
}

func (b *Bus) deliver(e domain.Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == e.Kind {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(e)
		}
	}
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

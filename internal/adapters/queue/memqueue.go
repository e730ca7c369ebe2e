package queue

import (
	"sync"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// MemQueue buffers notifications between the session coordinator and the
// event dispatcher. It is bounded and FIFO; Enqueue reports false when full
// and the caller drops the event.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.Event
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]domain.Event, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(e domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, e)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Event, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.EventQueue = (*MemQueue)(nil)

package ports

import "github.com/ghalamif/SensorLens/internal/domain"

// EventQueue buffers notifications between the coordinator and subscribers.
type EventQueue interface {
	Enqueue(e domain.Event) bool
	DequeueBatch(max int) []domain.Event
	Len() int
}

package ports

import (
	"context"

	"github.com/ghalamif/SensorLens/internal/domain"
)

type Sink interface {
	WriteBatch(ctx context.Context, batch *domain.Batch) error
	Name() string
}

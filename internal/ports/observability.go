package ports

import "github.com/ghalamif/SensorLens/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordFetch(o domain.FetchOutcome)
}

type Field struct {
	Key   string
	Value any
}

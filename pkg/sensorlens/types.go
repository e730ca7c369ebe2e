package sensorlens

import (
	"github.com/ghalamif/SensorLens/internal/app/coordinator"
	"github.com/ghalamif/SensorLens/internal/app/events"
	"github.com/ghalamif/SensorLens/internal/app/transform"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// Batch is one normalized set of records ordered by sample time.
type Batch = domain.Batch

// NormalizedRecord is a decoded record plus its [0,1] values and colors.
type NormalizedRecord = domain.NormalizedRecord

// RawRecord is a record exactly as the service returned it.
type RawRecord = domain.RawRecord

// Color is an RGBA color with channels in [0,1].
type Color = domain.Color

// Event is delivered to OnBatchAvailable and OnConnectivityResult handlers.
type Event = domain.Event

// ConnectivityResult carries the check state, diagnostic and connection log.
type ConnectivityResult = domain.ConnectivityResult

// FetchOutcome is the classified result of one request.
type FetchOutcome = domain.FetchOutcome

// RequestKind selects BulkData, ConnectivityProbe or CredentialCheck.
type RequestKind = domain.RequestKind

const (
	BulkData          = domain.BulkData
	ConnectivityProbe = domain.ConnectivityProbe
	CredentialCheck   = domain.CredentialCheck
)

// Credentials select the service a connectivity check runs against.
type Credentials = coordinator.Credentials

// Status is a read-only view of the session.
type Status = coordinator.Status

// Subscription is returned by the On* registration methods.
type Subscription = events.Subscription

// Decoder converts raw records; replace it to change the time zone or clock.
type Decoder = transform.Decoder

// Transport performs the outbound GETs.
type Transport = ports.Transport

// Sink receives normalized batches for export.
type Sink = ports.Sink

// Journal stores raw BulkData payloads.
type Journal = ports.Journal

// Observability receives logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

var (
	ErrNoData = coordinator.ErrNoData
	ErrClosed = coordinator.ErrClosed
)

// NewDecoder returns a decoder using local time and the system clock.
func NewDecoder() *Decoder {
	return transform.NewDecoder()
}

package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// InfluxSink writes one point per record, tagged with device and batch.
type InfluxSink struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
}

func NewInfluxSink(client influxdb2.Client, org, bucket, measurement string) *InfluxSink {
	if measurement == "" {
		measurement = "sensor_phone"
	}
	return &InfluxSink{client: client, org: org, bucket: bucket, measurement: measurement}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) WriteBatch(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	points := make([]*write.Point, 0, batch.Len())
	for i := range batch.Records {
		r := &batch.Records[i]
		p := influxdb2.NewPointWithMeasurement(s.measurement).
			AddTag("device_id", r.Raw.DeviceID).
			AddTag("batch_id", batch.ID).
			SetTime(r.Timestamp)
		for k, v := range rawValues(r) {
			p.AddField(k, v)
		}
		for k, v := range normalizedValues(r) {
			p.AddField(k+"_n", v)
		}
		points = append(points, p)
	}

	writeAPI := s.client.WriteAPIBlocking(s.org, s.bucket)
	if err := writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

var _ ports.Sink = (*InfluxSink)(nil)

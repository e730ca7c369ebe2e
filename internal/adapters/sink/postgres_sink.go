package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

const postgresColumns = 7

type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table}
}

func (p *PostgresSink) Name() string { return "postgres" }

// WriteBatch inserts one row per record. Rows are keyed by (batch_id, seq)
// so exporting the same batch twice is a no-op.
func (p *PostgresSink) WriteBatch(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (batch_id, seq, device_id, device_label, sample_ts, values, normalized) VALUES ")

	args := make([]any, 0, batch.Len()*postgresColumns)
	for i := range batch.Records {
		r := &batch.Records[i]
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6, len(args)+7))

		vals, err := json.Marshal(rawValues(r))
		if err != nil {
			return fmt.Errorf("marshal values: %w", err)
		}
		norm, err := json.Marshal(normalizedValues(r))
		if err != nil {
			return fmt.Errorf("marshal normalized: %w", err)
		}

		args = append(args,
			batch.ID,
			i,
			r.Raw.DeviceID,
			r.Raw.DeviceLabel,
			r.Timestamp,
			vals,
			norm,
		)
	}

	b.WriteString(" ON CONFLICT (batch_id, seq) DO NOTHING")

	_, err := p.db.ExecContext(ctx, b.String(), args...)
	return err
}

func rawValues(r *domain.NormalizedRecord) map[string]float64 {
	return map[string]float64{
		"altitude":  r.Altitude,
		"longitude": r.Longitude,
		"latitude":  r.Latitude,
		"accel_x":   r.Accel.X,
		"accel_y":   r.Accel.Y,
		"accel_z":   r.Accel.Z,
		"accel_mag": r.AccelMag,
		"gyro_x":    r.Gyroscope.X,
		"gyro_y":    r.Gyroscope.Y,
		"gyro_z":    r.Gyroscope.Z,
	}
}

func normalizedValues(r *domain.NormalizedRecord) map[string]float64 {
	return map[string]float64{
		"timestamp_seconds": r.TimestampSecondsN,
		"altitude":          r.AltitudeN,
		"longitude":         r.LongitudeN,
		"latitude":          r.LatitudeN,
		"accel_x":           r.AccelXN,
		"accel_y":           r.AccelYN,
		"accel_z":           r.AccelZN,
		"accel_mag":         r.AccelMagN,
	}
}

var _ ports.Sink = (*PostgresSink)(nil)

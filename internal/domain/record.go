package domain

import (
	"math"
	"time"
)

// RawRecord is one telemetry sample exactly as the service returns it.
// Every field is an opaque string; malformed values are expected.
type RawRecord struct {
	DeviceID    string `json:"G_DEVICE"`
	Created     string `json:"G_CREATED"`
	Timestamp   string `json:"C_TIMESTAMP"`
	DeviceLabel string `json:"C_DEVICE"`
	GyroX       string `json:"C_GYROSCOPEX"`
	GyroY       string `json:"C_GYROSCOPEY"`
	GyroZ       string `json:"C_GYROSCOPEZ"`
	AccelX      string `json:"C_ACCELEROMETERX"`
	AccelY      string `json:"C_ACCELEROMETERY"`
	AccelZ      string `json:"C_ACCELEROMETERZ"`
	Altitude    string `json:"C_ALTITUDE"`
	Longitude   string `json:"C_LONGITUDE"`
	Latitude    string `json:"C_LATITUDE"`
	Audio       string `json:"C_AUDIO"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude is the Euclidean length. It only overflows to +Inf when the
// length itself exceeds math.MaxFloat64.
func (v Vec3) Magnitude() float64 {
	return math.Hypot(math.Hypot(v.X, v.Y), v.Z)
}

// Color is an RGBA color with channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// ParseDefect records a field that could not be parsed and was replaced by a safe default.
type ParseDefect struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Err   string `json:"error"`
}

// DecodedRecord holds the typed values derived from a RawRecord.
type DecodedRecord struct {
	Raw              RawRecord     `json:"raw"`
	CreatedOn        time.Time     `json:"created_on"`
	Timestamp        time.Time     `json:"timestamp"`
	ShortDate        string        `json:"short_date"`
	ShortTime        string        `json:"short_time"`
	TimestampSeconds float64       `json:"timestamp_seconds"`
	Altitude         float64       `json:"altitude"`
	Longitude        float64       `json:"longitude"`
	Latitude         float64       `json:"latitude"`
	Accel            Vec3          `json:"accel"`
	AccelMag         float64       `json:"accel_mag"`
	Gyroscope        Vec3          `json:"gyroscope"`
	Defects          []ParseDefect `json:"defects,omitempty"`
}

// NormalizedRecord augments a DecodedRecord with values rescaled to [0,1]
// across the batch and the two derived colors.
type NormalizedRecord struct {
	DecodedRecord

	TimestampSecondsN float64 `json:"timestamp_seconds_n"`
	AltitudeN         float64 `json:"altitude_n"`
	LongitudeN        float64 `json:"longitude_n"`
	LatitudeN         float64 `json:"latitude_n"`
	AccelXN           float64 `json:"accel_x_n"`
	AccelYN           float64 `json:"accel_y_n"`
	AccelZN           float64 `json:"accel_z_n"`
	AccelMagN         float64 `json:"accel_mag_n"`

	AccelColorMagN Color `json:"accel_color_mag_n"`
	AccelColorVecN Color `json:"accel_color_vec_n"`
}

// Batch is one normalized set of records, ordered by ascending sample time.
// ID identifies the cached payload the batch was built from.
type Batch struct {
	ID      string             `json:"id"`
	Records []NormalizedRecord `json:"records"`
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/SensorLens/internal/domain"
)

const (
	// "/Date(1465941485000)/": the millisecond epoch starts at offset 6 and is 13 digits long.
	epochOffset = 6
	epochDigits = 13

	// DefaultNumber replaces any numeric field that fails to parse.
	DefaultNumber = 1.0

	ShortDateLayout = "1/2/2006"
	ShortTimeLayout = "3:04:05 PM"
)

var errNotFinite = errors.New("value is not finite")

// Decoder turns RawRecords into DecodedRecords. It never fails: every field
// that cannot be parsed is replaced by a default and listed in Defects.
type Decoder struct {
	Location *time.Location
	Now      func() time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{Location: time.Local, Now: time.Now}
}

// ParseNumber parses a decimal string into a finite float.
func ParseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

// ParseEpochSeconds extracts the millisecond epoch embedded in a
// "/Date(<ms>)/" string and returns it as seconds.
func ParseEpochSeconds(s string) (float64, error) {
	if len(s) < epochOffset+epochDigits {
		return 0, fmt.Errorf("timestamp %q shorter than %d characters", s, epochOffset+epochDigits)
	}
	ms, err := ParseNumber(s[epochOffset : epochOffset+epochDigits])
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return ms / 1000, nil
}

// EpochToTime converts seconds since the Unix epoch (UTC) into loc.
func EpochToTime(seconds float64, loc *time.Location) time.Time {
	ms := int64(math.Round(seconds * 1000))
	return time.UnixMilli(ms).In(loc)
}

func (d *Decoder) Decode(raw domain.RawRecord) domain.DecodedRecord {
	rec := domain.DecodedRecord{Raw: raw}
	loc := d.location()

	defect := func(field, value string, err error) {
		rec.Defects = append(rec.Defects, domain.ParseDefect{Field: field, Value: value, Err: err.Error()})
	}
	number := func(field, value string) float64 {
		v, err := ParseNumber(value)
		if err != nil {
			defect(field, value, err)
			return DefaultNumber
		}
		return v
	}

	created, err := ParseEpochSeconds(raw.Created)
	if err != nil {
		defect("G_CREATED", raw.Created, err)
		rec.CreatedOn = d.now().In(loc)
	} else {
		rec.CreatedOn = EpochToTime(created, loc)
	}

	sampled, err := ParseEpochSeconds(raw.Timestamp)
	if err != nil {
		defect("C_TIMESTAMP", raw.Timestamp, err)
		rec.Timestamp = d.now().In(loc)
		rec.TimestampSeconds = DefaultNumber
	} else {
		rec.Timestamp = EpochToTime(sampled, loc)
		rec.TimestampSeconds = sampled
	}
	rec.ShortDate = rec.Timestamp.Format(ShortDateLayout)
	rec.ShortTime = rec.Timestamp.Format(ShortTimeLayout)

	rec.Altitude = number("C_ALTITUDE", raw.Altitude)
	rec.Longitude = number("C_LONGITUDE", raw.Longitude)
	rec.Latitude = number("C_LATITUDE", raw.Latitude)
	rec.Accel = domain.Vec3{
		X: number("C_ACCELEROMETERX", raw.AccelX),
		Y: number("C_ACCELEROMETERY", raw.AccelY),
		Z: number("C_ACCELEROMETERZ", raw.AccelZ),
	}
	rec.AccelMag = rec.Accel.Magnitude()
	if math.IsInf(rec.AccelMag, 0) {
		defect("ACCEL_MAGNITUDE", strconv.FormatFloat(rec.AccelMag, 'g', -1, 64), errNotFinite)
		rec.AccelMag = DefaultNumber
	}
	rec.Gyroscope = domain.Vec3{
		X: number("C_GYROSCOPEX", raw.GyroX),
		Y: number("C_GYROSCOPEY", raw.GyroY),
		Z: number("C_GYROSCOPEZ", raw.GyroZ),
	}
	return rec
}

// DecodeAll decodes records in order.
func (d *Decoder) DecodeAll(raws []domain.RawRecord) []domain.DecodedRecord {
	out := make([]domain.DecodedRecord, len(raws))
	for i, raw := range raws {
		out[i] = d.Decode(raw)
	}
	return out
}

func (d *Decoder) location() *time.Location {
	if d == nil || d.Location == nil {
		return time.Local
	}
	return d.Location
}

func (d *Decoder) now() time.Time {
	if d == nil || d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

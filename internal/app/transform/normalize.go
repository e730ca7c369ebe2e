package transform

import (
	"errors"
	"math"
	"sort"

	"github.com/ghalamif/SensorLens/internal/domain"
)

// RangeEpsilon replaces a zero range so (v-min)/range never divides by zero.
// It only applies when every record shares the value, so those fields normalize to 0.
const RangeEpsilon = 1e-6

// ErrEmptyBatch is returned when Normalize is called without records.
// Callers are expected to guard against it.
var ErrEmptyBatch = errors.New("transform: cannot normalize an empty batch")

// Field names one of the tracked numeric fields.
type Field int

const (
	FieldAltitude Field = iota
	FieldLongitude
	FieldLatitude
	FieldTimestampSeconds
	FieldAccelX
	FieldAccelY
	FieldAccelZ
	FieldAccelMag
	numFields
)

var fieldNames = [numFields]string{
	"altitude", "longitude", "latitude", "timestamp_seconds",
	"accel_x", "accel_y", "accel_z", "accel_mag",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

func (f Field) value(r *domain.DecodedRecord) float64 {
	switch f {
	case FieldAltitude:
		return r.Altitude
	case FieldLongitude:
		return r.Longitude
	case FieldLatitude:
		return r.Latitude
	case FieldTimestampSeconds:
		return r.TimestampSeconds
	case FieldAccelX:
		return r.Accel.X
	case FieldAccelY:
		return r.Accel.Y
	case FieldAccelZ:
		return r.Accel.Z
	case FieldAccelMag:
		return r.AccelMag
	}
	return 0
}

func (f Field) set(r *domain.NormalizedRecord, v float64) {
	switch f {
	case FieldAltitude:
		r.AltitudeN = v
	case FieldLongitude:
		r.LongitudeN = v
	case FieldLatitude:
		r.LatitudeN = v
	case FieldTimestampSeconds:
		r.TimestampSecondsN = v
	case FieldAccelX:
		r.AccelXN = v
	case FieldAccelY:
		r.AccelYN = v
	case FieldAccelZ:
		r.AccelZN = v
	case FieldAccelMag:
		r.AccelMagN = v
	}
}

// Extrema describes one field across a batch. MinIndex and MaxIndex point at
// the first record holding the extreme value. Range is +Inf when max-min
// overflows float64.
type Extrema struct {
	Min, Max           float64
	MinIndex, MaxIndex int
	Range              float64
}

// Scale maps v from [Min,Max] onto [0,1]. An overflowing range is rescaled
// on halved operands; results are clamped to [0,1] and NaN maps to 0.
func (e Extrema) Scale(v float64) float64 {
	var n float64
	if math.IsInf(e.Range, 1) {
		n = (v/2 - e.Min/2) / (e.Max/2 - e.Min/2)
	} else {
		n = (v - e.Min) / e.Range
	}
	switch {
	case math.IsNaN(n), n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}

// Stats holds the extrema of every tracked field.
type Stats [numFields]Extrema

func (s *Stats) Field(f Field) Extrema { return s[f] }

// ComputeStats runs the extrema and range passes.
func ComputeStats(records []domain.DecodedRecord) (Stats, error) {
	var st Stats
	if len(records) == 0 {
		return st, ErrEmptyBatch
	}
	for f := Field(0); f < numFields; f++ {
		v := f.value(&records[0])
		st[f] = Extrema{Min: v, Max: v}
	}
	for i := 1; i < len(records); i++ {
		for f := Field(0); f < numFields; f++ {
			v := f.value(&records[i])
			e := &st[f]
			if v > e.Max {
				e.Max, e.MaxIndex = v, i
			}
			if v < e.Min {
				e.Min, e.MinIndex = v, i
			}
		}
	}
	for f := Field(0); f < numFields; f++ {
		e := &st[f]
		e.Range = math.Abs(e.Max - e.Min)
		if e.Range == 0 {
			e.Range = RangeEpsilon
		}
	}
	return st, nil
}

// Normalize rescales every tracked field into [0,1], derives the magnitude and
// vector colors, then stable-sorts by raw sample seconds.
func Normalize(records []domain.DecodedRecord) ([]domain.NormalizedRecord, error) {
	st, err := ComputeStats(records)
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedRecord, len(records))
	for i := range records {
		n := &out[i]
		n.DecodedRecord = records[i]
		for f := Field(0); f < numFields; f++ {
			f.set(n, st[f].Scale(f.value(&records[i])))
		}
		n.AccelColorMagN = domain.Color{R: n.AccelMagN, G: 0.5, B: 0.5, A: 1}
		n.AccelColorVecN = domain.Color{R: n.AccelXN, G: n.AccelYN, B: n.AccelZN, A: 1}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampSeconds < out[j].TimestampSeconds
	})
	return out, nil
}

package transform

import (
	"testing"
	"time"

	"github.com/ghalamif/SensorLens/internal/domain"
)

func TestParseEpochSecondsFixedOffset(t *testing.T) {
	got, err := ParseEpochSeconds("/Date(1465941485000)/")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != 1465941485 {
		t.Fatalf("expected 1465941485 seconds, got %f", got)
	}
}

func TestDecodeTimestampConvertsToLocation(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	dec := &Decoder{Location: loc, Now: time.Now}

	rec := dec.Decode(domain.RawRecord{
		DeviceID:  "dev",
		Created:   "/Date(1465941656507)/",
		Timestamp: "/Date(1465941485000)/",
		AccelX:    "3",
		AccelY:    "4",
		AccelZ:    "0",
		Altitude:  "12.5",
		Longitude: "-0.22",
		Latitude:  "51.41",
		GyroX:     "0",
		GyroY:     "0",
		GyroZ:     "0",
	})

	if !rec.Timestamp.Equal(time.Unix(1465941485, 0)) {
		t.Fatalf("unexpected timestamp %v", rec.Timestamp)
	}
	if rec.Timestamp.Location() != loc {
		t.Fatalf("expected timestamp in decoder location, got %v", rec.Timestamp.Location())
	}
	if !rec.CreatedOn.Equal(time.UnixMilli(1465941656507)) {
		t.Fatalf("unexpected created instant %v", rec.CreatedOn)
	}
	if rec.TimestampSeconds != 1465941485 {
		t.Fatalf("unexpected seconds %f", rec.TimestampSeconds)
	}
	if rec.AccelMag != 5 {
		t.Fatalf("expected magnitude 5, got %f", rec.AccelMag)
	}
	if rec.ShortDate != "6/14/2016" {
		t.Fatalf("unexpected short date %q", rec.ShortDate)
	}
	if len(rec.Defects) != 0 {
		t.Fatalf("expected no defects, got %+v", rec.Defects)
	}
}

func TestDecodeMalformedFieldsUseDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dec := &Decoder{Location: time.UTC, Now: func() time.Time { return now }}

	rec := dec.Decode(domain.RawRecord{DeviceID: "dev", Altitude: "abc", Latitude: "NaN"})

	if !rec.Timestamp.Equal(now) || !rec.CreatedOn.Equal(now) {
		t.Fatalf("expected instants to default to now, got %v / %v", rec.Timestamp, rec.CreatedOn)
	}
	if rec.TimestampSeconds != DefaultNumber {
		t.Fatalf("expected seconds default %f, got %f", DefaultNumber, rec.TimestampSeconds)
	}
	if rec.Altitude != DefaultNumber || rec.Latitude != DefaultNumber || rec.Accel.X != DefaultNumber {
		t.Fatalf("expected numeric defaults, got %+v", rec)
	}
	// created, timestamp, 3 gyro, 3 accel, altitude, longitude, latitude
	if len(rec.Defects) != 11 {
		t.Fatalf("expected 11 defects, got %d: %+v", len(rec.Defects), rec.Defects)
	}
	if rec.Defects[0].Field != "G_CREATED" {
		t.Fatalf("expected first defect on G_CREATED, got %s", rec.Defects[0].Field)
	}
}

func TestDecodeEmptyTimestampIsNow(t *testing.T) {
	dec := NewDecoder()
	before := time.Now()
	rec := dec.Decode(domain.RawRecord{Timestamp: ""})
	after := time.Now()

	if rec.Timestamp.Before(before) || rec.Timestamp.After(after) {
		t.Fatalf("timestamp %v not within [%v, %v]", rec.Timestamp, before, after)
	}
}

func TestParseNumberRejectsNonFinite(t *testing.T) {
	for _, in := range []string{"NaN", "Inf", "-Inf", "", "1,5"} {
		if _, err := ParseNumber(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if v, err := ParseNumber(" -0.0042724609375 "); err != nil || v != -0.0042724609375 {
		t.Fatalf("unexpected parse result %v %v", v, err)
	}
}

func TestDecodeHugeAxesKeepFiniteMagnitude(t *testing.T) {
	dec := &Decoder{Location: time.UTC, Now: time.Now}

	rec := dec.Decode(domain.RawRecord{AccelX: "1e200", AccelY: "0", AccelZ: "0"})
	if rec.AccelMag != 1e200 {
		t.Fatalf("expected magnitude 1e200 without overflow, got %g", rec.AccelMag)
	}

	rec = dec.Decode(domain.RawRecord{AccelX: "1.7e308", AccelY: "1.7e308", AccelZ: "1.7e308"})
	if rec.AccelMag != DefaultNumber {
		t.Fatalf("expected overflowing magnitude to default to %f, got %g", DefaultNumber, rec.AccelMag)
	}
	found := false
	for _, d := range rec.Defects {
		if d.Field == "ACCEL_MAGNITUDE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a magnitude defect, got %+v", rec.Defects)
	}
}

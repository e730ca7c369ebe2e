package transform

import (
	"errors"
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/ghalamif/SensorLens/internal/domain"
)

// ErrUnparsable is returned when a cached BulkData payload is not valid JSON,
// typically because an error page was stored instead of data.
var ErrUnparsable = errors.New("transform: payload is not valid JSON")

// ParsePayload reads up to limit records from d.results. A record without a
// device id marks the end of data. limit <= 0 reads every record.
func ParsePayload(text string, limit int) ([]domain.RawRecord, error) {
	var p fastjson.Parser
	root, err := p.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	results := root.GetArray("d", "results")
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	out := make([]domain.RawRecord, 0, limit)
	for i := 0; i < limit; i++ {
		r := results[i]
		device := field(r, "G_DEVICE")
		if device == "" {
			break
		}
		out = append(out, domain.RawRecord{
			DeviceID:    device,
			Created:     field(r, "G_CREATED"),
			Timestamp:   field(r, "C_TIMESTAMP"),
			DeviceLabel: field(r, "C_DEVICE"),
			GyroX:       field(r, "C_GYROSCOPEX"),
			GyroY:       field(r, "C_GYROSCOPEY"),
			GyroZ:       field(r, "C_GYROSCOPEZ"),
			AccelX:      field(r, "C_ACCELEROMETERX"),
			AccelY:      field(r, "C_ACCELEROMETERY"),
			AccelZ:      field(r, "C_ACCELEROMETERZ"),
			Altitude:    field(r, "C_ALTITUDE"),
			Longitude:   field(r, "C_LONGITUDE"),
			Latitude:    field(r, "C_LATITUDE"),
			Audio:       field(r, "C_AUDIO"),
		})
	}
	return out, nil
}

// field returns the string form of r[key]; non-string scalars keep their JSON text.
func field(r *fastjson.Value, key string) string {
	v := r.Get(key)
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}

package transform

import "github.com/ghalamif/SensorLens/internal/domain"

// BuildBatch parses, decodes and normalizes a cached BulkData payload.
// A payload with no records yields an empty batch rather than an error.
func BuildBatch(id, text string, limit int, dec *Decoder) (*domain.Batch, int, error) {
	raws, err := ParsePayload(text, limit)
	if err != nil {
		return nil, 0, err
	}
	batch := &domain.Batch{ID: id}
	if len(raws) == 0 {
		return batch, 0, nil
	}

	decoded := dec.DecodeAll(raws)
	defects := 0
	for i := range decoded {
		defects += len(decoded[i].Defects)
	}

	normalized, err := Normalize(decoded)
	if err != nil {
		return nil, defects, err
	}
	batch.Records = normalized
	return batch, defects, nil
}

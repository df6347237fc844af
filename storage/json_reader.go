package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"margarita-listings/models"
)

// ErrNoRecords is returned when an input file holds no records.
var ErrNoRecords = errors.New("storage: no records")

// JSONRecordReader reads raw records from a JSON file, either an array of
// records or an object with a "records" array.
type JSONRecordReader struct {
	path string
}

// NewJSONRecordReader creates a reader for path.
func NewJSONRecordReader(path string) *JSONRecordReader {
	return &JSONRecordReader{path: path}
}

// Fetch reads and decodes the file.
func (r *JSONRecordReader) Fetch(ctx context.Context) ([]*models.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("json: read %q: %w", r.path, err)
	}

	var records []*models.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var wrapped struct {
			Records []*models.RawRecord `json:"records"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("json: decode %q: %w", r.path, err)
		}
		records = wrapped.Records
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("json: %q: %w", r.path, ErrNoRecords)
	}
	return records, nil
}

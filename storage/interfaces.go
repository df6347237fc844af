package storage

import (
	"context"

	"margarita-listings/models"
)

// CorpusStore persists the listing corpus between runs.
type CorpusStore interface {
	Save(listings []*models.Listing) error
	FetchAll() ([]*models.Listing, error)
	Close() error
}

// RawRecordWriter is the interface for persisting unprocessed scraped data.
type RawRecordWriter interface {
	WriteRaw(records []*models.RawRecord) error
	Close() error
}

// RecordSource produces raw records for a batch.
type RecordSource interface {
	Fetch(ctx context.Context) ([]*models.RawRecord, error)
}

package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"margarita-listings/models"
)

// listingColumns is the column order shared by upserts and scans.
var listingColumns = []string{
	"id", "platform", "source_url", "thumbnail_url", "owner_handle", "caption", "title", "category",
	"price_usd", "price_per_m2", "bedrooms", "bathrooms", "area_m2", "parking",
	"zone", "address", "lat", "lng", "features", "quality_score", "confidence",
	"status", "approval", "rationale", "posted_at", "updated_at",
}

// PostgresStore persists the listing corpus to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ CorpusStore = (*PostgresStore)(nil)

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			seq           BIGSERIAL,
			id            TEXT PRIMARY KEY,
			platform      VARCHAR(50)      NOT NULL DEFAULT '',
			source_url    TEXT             NOT NULL DEFAULT '',
			thumbnail_url TEXT             NOT NULL DEFAULT '',
			owner_handle  TEXT             NOT NULL DEFAULT '',
			caption       TEXT             NOT NULL DEFAULT '',
			title         TEXT             NOT NULL DEFAULT '',
			category      VARCHAR(20)      NOT NULL,
			price_usd     DOUBLE PRECISION,
			price_per_m2  DOUBLE PRECISION,
			bedrooms      INTEGER,
			bathrooms     INTEGER,
			area_m2       DOUBLE PRECISION,
			parking       INTEGER,
			zone          TEXT             NOT NULL DEFAULT '',
			address       TEXT             NOT NULL DEFAULT '',
			lat           DOUBLE PRECISION,
			lng           DOUBLE PRECISION,
			features      TEXT[]           NOT NULL DEFAULT '{}',
			quality_score INTEGER          NOT NULL DEFAULT 0,
			confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
			status        VARCHAR(20)      NOT NULL DEFAULT 'available',
			approval      VARCHAR(20)      NOT NULL DEFAULT 'pending',
			rationale     TEXT             NOT NULL DEFAULT '',
			posted_at     TIMESTAMPTZ,
			updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_zone       ON listings(zone);
		CREATE INDEX IF NOT EXISTS idx_listings_category   ON listings(category);
		CREATE INDEX IF NOT EXISTS idx_listings_source_url ON listings(source_url);
		CREATE INDEX IF NOT EXISTS idx_listings_status     ON listings(status);
	`)
	return err
}

// Save upserts every listing by id. Existing rows keep their original
// insertion order.
func (ps *PostgresStore) Save(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := ps.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := min(i+batchSize, len(listings))
		batch := listings[i:end]

		args := make([]interface{}, 0, len(batch)*len(listingColumns))
		for _, l := range batch {
			args = append(args, listingArgs(l)...)
		}
		if _, err := tx.Exec(upsertQuery(len(batch)), args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: upsert batch at %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// upsertQuery builds a multi-row INSERT ... ON CONFLICT (id) DO UPDATE.
func upsertQuery(rows int) string {
	cols := len(listingColumns)
	values := make([]string, 0, rows)
	for r := 0; r < rows; r++ {
		ph := make([]string, cols)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", r*cols+c+1)
		}
		values = append(values, "("+strings.Join(ph, ",")+")")
	}

	updates := make([]string, 0, cols-1)
	for _, col := range listingColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	return fmt.Sprintf("INSERT INTO listings (%s) VALUES %s ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(listingColumns, ", "), strings.Join(values, ","), strings.Join(updates, ", "))
}

func listingArgs(l *models.Listing) []interface{} {
	var lat, lng sql.NullFloat64
	if l.Coords != nil {
		lat = sql.NullFloat64{Float64: l.Coords.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: l.Coords.Lng, Valid: true}
	}
	features := l.Features
	if features == nil {
		features = []string{}
	}
	updated := l.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	return []interface{}{
		l.ID, l.Platform, l.SourceURL, l.ThumbnailURL, l.OwnerHandle, l.Caption, l.Title, string(l.Category),
		l.PriceUSD, l.PricePerM2, l.Bedrooms, l.Bathrooms, l.AreaM2, l.Parking,
		l.Zone, l.Address, lat, lng, pq.Array(features), l.QualityScore, l.Confidence,
		string(l.Status), string(l.Approval), l.Rationale, nullTime(l.PostedAt), updated,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Close closes the database handle.
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// FetchAll retrieves the corpus in insertion order.
func (ps *PostgresStore) FetchAll() ([]*models.Listing, error) {
	rows, err := ps.db.Query(fmt.Sprintf(`SELECT %s FROM listings ORDER BY seq`, strings.Join(listingColumns, ", ")))
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var (
		l                           models.Listing
		category, status, approval  string
		price, ppm2, area, lat, lng sql.NullFloat64
		beds, baths, parking        sql.NullInt64
		posted                      sql.NullTime
	)
	err := rows.Scan(
		&l.ID, &l.Platform, &l.SourceURL, &l.ThumbnailURL, &l.OwnerHandle, &l.Caption, &l.Title, &category,
		&price, &ppm2, &beds, &baths, &area, &parking,
		&l.Zone, &l.Address, &lat, &lng, pq.Array(&l.Features), &l.QualityScore, &l.Confidence,
		&status, &approval, &l.Rationale, &posted, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Category = models.Category(category)
	if !l.Category.IsValid() {
		return nil, fmt.Errorf("listing %s: unknown category %q", l.ID, category)
	}
	l.Status = models.Status(status)
	l.Approval = models.ApprovalStatus(approval)
	l.PriceUSD = floatPtr(price)
	l.PricePerM2 = floatPtr(ppm2)
	l.AreaM2 = floatPtr(area)
	l.Bedrooms = intPtr(beds)
	l.Bathrooms = intPtr(baths)
	l.Parking = intPtr(parking)
	if lat.Valid && lng.Valid {
		l.Coords = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if posted.Valid {
		l.PostedAt = posted.Time
	}
	return &l, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return models.Int(int(v.Int64))
}

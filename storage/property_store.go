package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"divar-ingest/models"
)

// PropertyStore persists canonical property records in PostgreSQL/PostGIS.
// The uniqueness constraint on external_id is the only concurrency control:
// overlapping runs upserting the same listing converge on one row,
// last writer wins.
type PropertyStore struct {
	db *sql.DB
}

// NewPropertyStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PropertyStore.
func NewPropertyStore(dsn string) (*PropertyStore, error) {
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
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PropertyStore{db: db}
	if err := ps.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PropertyStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE EXTENSION IF NOT EXISTS postgis;

		CREATE TABLE IF NOT EXISTS properties (
			id              BIGSERIAL PRIMARY KEY,
			external_id     TEXT        UNIQUE NOT NULL,
			title           TEXT        NOT NULL,
			description     TEXT        NOT NULL DEFAULT '',
			price           BIGINT,
			price_per_meter BIGINT,
			property_type   VARCHAR(20),
			latitude        DOUBLE PRECISION,
			longitude       DOUBLE PRECISION,
			location        geography(Point,4326),
			image_sources   TEXT[]      NOT NULL DEFAULT '{}',
			fetched_at      TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_location ON properties USING GIST(location);
		CREATE INDEX IF NOT EXISTS idx_properties_price    ON properties(price);
		CREATE INDEX IF NOT EXISTS idx_properties_type     ON properties(property_type);

		CREATE TABLE IF NOT EXISTS property_attributes (
			id          BIGSERIAL PRIMARY KEY,
			property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			key         TEXT   NOT NULL,
			value       TEXT   NOT NULL DEFAULT '',
			UNIQUE(property_id, key)
		);

		CREATE TABLE IF NOT EXISTS property_images (
			id          BIGSERIAL PRIMARY KEY,
			property_id BIGINT  NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			source_url  TEXT    NOT NULL DEFAULT '',
			url         TEXT    NOT NULL,
			is_featured BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order  INT     NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(property_id, sort_order)
		);
	`)
	return err
}

// Upsert inserts or updates the record keyed on external_id and replaces its
// attribute rows, all in one transaction, so readers never observe a
// half-applied update. Returns the internal property id.
func (ps *PropertyStore) Upsert(ctx context.Context, rec *models.PropertyRecord) (int64, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var lat, lon *float64
	if rec.Location != nil {
		lat = &rec.Location.Latitude
		lon = &rec.Location.Longitude
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO properties
			(external_id, title, description, price, price_per_meter,
			 latitude, longitude, location, image_sources, fetched_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7,
			 CASE WHEN $6::float8 IS NULL THEN NULL
			      ELSE ST_SetSRID(ST_MakePoint($7, $6), 4326)::geography END,
			 $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			title           = EXCLUDED.title,
			description     = EXCLUDED.description,
			price           = EXCLUDED.price,
			price_per_meter = EXCLUDED.price_per_meter,
			latitude        = EXCLUDED.latitude,
			longitude       = EXCLUDED.longitude,
			location        = EXCLUDED.location,
			image_sources   = EXCLUDED.image_sources,
			fetched_at      = EXCLUDED.fetched_at,
			updated_at      = NOW()
		RETURNING id
	`, rec.ExternalID, rec.Title, rec.Description, rec.Price, rec.PricePerMeter,
		lat, lon, pq.Array(rec.ImageSources), rec.FetchedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert %s: %w", rec.ExternalID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM property_attributes WHERE property_id = $1`, id); err != nil {
		return 0, fmt.Errorf("postgres: clear attributes for %s: %w", rec.ExternalID, err)
	}
	for _, attr := range rec.Attributes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO property_attributes (property_id, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (property_id, key) DO UPDATE SET value = EXCLUDED.value
		`, id, attr.Key, attr.Value); err != nil {
			return 0, fmt.Errorf("postgres: insert attribute %q for %s: %w", attr.Key, rec.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit %s: %w", rec.ExternalID, err)
	}
	return id, nil
}

// ImageCount reports how many re-hosted images exist for the property.
// Offload uses it to detect an already-completed pass.
func (ps *PropertyStore) ImageCount(ctx context.Context, propertyID int64) (int, error) {
	var n int
	err := ps.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM property_images WHERE property_id = $1`, propertyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count images: %w", err)
	}
	return n, nil
}

// ReplaceImages swaps the property's image rows for the given set in one
// transaction.
func (ps *PropertyStore) ReplaceImages(ctx context.Context, propertyID int64, images []models.PropertyImage) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM property_images WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("postgres: clear images: %w", err)
	}

	for _, img := range images {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO property_images (property_id, source_url, url, is_featured, sort_order)
			VALUES ($1, $2, $3, $4, $5)
		`, propertyID, img.SourceURL, img.PublicURL, img.Featured, img.Position); err != nil {
			return fmt.Errorf("postgres: insert image %d: %w", img.Position, err)
		}
	}

	return tx.Commit()
}

// FetchUnclassified returns properties still lacking a property_type, for
// the manually-triggered classification pass.
func (ps *PropertyStore) FetchUnclassified(ctx context.Context) ([]*models.PropertyRecord, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, external_id, title, description
		FROM properties
		WHERE property_type IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch unclassified: %w", err)
	}
	defer rows.Close()

	var recs []*models.PropertyRecord
	for rows.Next() {
		rec := &models.PropertyRecord{}
		if err := rows.Scan(&rec.ID, &rec.ExternalID, &rec.Title, &rec.Description); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SetPropertyType records the classification result for one property.
func (ps *PropertyStore) SetPropertyType(ctx context.Context, propertyID int64, pt models.PropertyType) error {
	_, err := ps.db.ExecContext(ctx,
		`UPDATE properties SET property_type = $2, updated_at = NOW() WHERE id = $1`,
		propertyID, string(pt))
	if err != nil {
		return fmt.Errorf("postgres: set property type: %w", err)
	}
	return nil
}

func (ps *PropertyStore) Close() error {
	return ps.db.Close()
}

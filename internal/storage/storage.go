package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"geofeatures/internal/models"
)

var (
	// ErrFeatureNotFound is returned when no feature matches the given id.
	ErrFeatureNotFound = errors.New("feature not found")
	// ErrAlreadyBuffered is returned when the feature has left the queued
	// state, i.e. a footprint already exists for it.
	ErrAlreadyBuffered = errors.New("feature already buffered")
)

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	storage := &Storage{pool: pool, db: db}

	if err := storage.ensurePostGIS(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	return storage, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

// ensurePostGIS verifies the PostGIS extension is installed. Every query
// in this package depends on its geography functions, so fail at startup
// with a clear message rather than on the first request.
func (s *Storage) ensurePostGIS() error {
	const op = "storage.ensurePostGIS"

	var count int
	err := s.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM pg_extension WHERE extname = 'postgis'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("%s: failed to check extension: %v", op, err)
	}
	if count == 0 {
		return fmt.Errorf("%s: postgis extension is not installed", op)
	}
	return nil
}

// CreateFeature inserts a new queued feature at (lat, lon) and returns its
// id. Coordinate ranges are the caller's responsibility.
func (s *Storage) CreateFeature(ctx context.Context, name string, lat, lon float64) (uuid.UUID, error) {
	const op = "storage.CreateFeature"

	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO features (id, name, status, attempts, created_at, updated_at, geom)
		 VALUES ($1, $2, $3, 0, $4, $4,
		         ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography)`,
		id, name, models.StatusQueued, now, lon, lat)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %v", op, err)
	}
	return id, nil
}

// ProcessFeature buffers the feature's point by bufferM meters, records
// the resulting footprint and its area, and advances the feature to done.
// Both writes happen in one transaction; on any failure nothing is kept.
//
// The status update doubles as an atomic claim: it only matches a queued
// row, so concurrent calls for the same id serialize on the row lock and
// the loser gets ErrAlreadyBuffered instead of a duplicate-key failure.
func (s *Storage) ProcessFeature(ctx context.Context, id uuid.UUID, bufferM int) error {
	const op = "storage.ProcessFeature"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	tag, err := tx.Exec(ctx,
		`UPDATE features
		 SET status = $2, attempts = attempts + 1, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, models.StatusDone, now, models.StatusQueued)
	if err != nil {
		return fmt.Errorf("%s: claim feature: %v", op, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM features WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrFeatureNotFound
		}
		if err != nil {
			return fmt.Errorf("%s: check feature: %v", op, err)
		}
		return ErrAlreadyBuffered
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO footprints (feature_id, buffer_m, area_m2, created_at, geom)
		 SELECT f.id, $2, ST_Area(ST_Buffer(f.geom, $2)), $3, ST_Buffer(f.geom, $2)
		 FROM features f
		 WHERE f.id = $1`,
		id, bufferM, now)
	if err != nil {
		return fmt.Errorf("%s: insert footprint: %v", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %v", op, err)
	}
	return nil
}

// GetFeature returns the feature joined with its optional footprint.
// Buffer fields are nil when the feature has not been processed yet.
func (s *Storage) GetFeature(ctx context.Context, id uuid.UUID) (*models.FeatureDetail, error) {
	const op = "storage.GetFeature"

	var (
		d       models.FeatureDetail
		geomWKT string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT f.id, f.name, f.status, f.attempts, f.created_at, f.updated_at,
		        ST_AsText(f.geom), fp.buffer_m, fp.area_m2
		 FROM features f
		 LEFT JOIN footprints fp ON fp.feature_id = f.id
		 WHERE f.id = $1`,
		id).Scan(&d.ID, &d.Name, &d.Status, &d.Attempts, &d.CreatedAt, &d.UpdatedAt,
		&geomWKT, &d.BufferM, &d.BufferAreaM2)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFeatureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	d.Lat, d.Lon, err = parsePointWKT(geomWKT)
	if err != nil {
		return nil, fmt.Errorf("%s: parse geometry: %v", op, err)
	}
	return &d, nil
}

// FeaturesNear returns features within radiusM meters of (lat, lon),
// nearest first. Distance is geodesic, computed by PostGIS. The result is
// empty, never nil-with-error, when nothing matches.
func (s *Storage) FeaturesNear(ctx context.Context, lat, lon, radiusM float64) ([]models.NearbyFeature, error) {
	const op = "storage.FeaturesNear"

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.name, f.status, f.attempts, f.created_at, f.updated_at,
		        ST_AsText(f.geom), fp.buffer_m, fp.area_m2,
		        ST_Distance(f.geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_m
		 FROM features f
		 LEFT JOIN footprints fp ON fp.feature_id = f.id
		 WHERE ST_DWithin(f.geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		 ORDER BY distance_m, f.id`,
		lon, lat, radiusM)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	features := []models.NearbyFeature{}
	for rows.Next() {
		var (
			nf      models.NearbyFeature
			geomWKT string
		)
		if err := rows.Scan(&nf.ID, &nf.Name, &nf.Status, &nf.Attempts,
			&nf.CreatedAt, &nf.UpdatedAt, &geomWKT,
			&nf.BufferM, &nf.BufferAreaM2, &nf.DistanceM); err != nil {
			return nil, fmt.Errorf("%s: scan: %v", op, err)
		}
		nf.Lat, nf.Lon, err = parsePointWKT(geomWKT)
		if err != nil {
			return nil, fmt.Errorf("%s: parse geometry: %v", op, err)
		}
		features = append(features, nf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return features, nil
}

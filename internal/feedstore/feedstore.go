package feedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

const schema = `
CREATE TABLE IF NOT EXISTS imported_reports (
	id          BIGSERIAL PRIMARY KEY,
	imported_at TIMESTAMPTZ NOT NULL,
	mode        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is the durable event log of imported report collections, so field
// data survives a restart of the offline toolkit.
type Store struct {
	log  zerolog.Logger
	pool *pgxpool.Pool
}

// Open connects, verifies connectivity early, and ensures the schema.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure imported_reports schema: %w", err)
	}
	return &Store{log: log, pool: pool}, nil
}

func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Append writes one collection. The feature list travels as a JSONB payload;
// import time and mode are first-class columns for ordering and inspection.
func (s *Store) Append(ctx context.Context, c overlay.ReportCollection) error {
	payload, err := json.Marshal(c.Features)
	if err != nil {
		return err
	}
	importedAt := c.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO imported_reports (imported_at, mode, payload) VALUES ($1, $2, $3)`,
		importedAt, string(c.Mode), payload)
	return err
}

// List returns every stored collection in import order.
func (s *Store) List(ctx context.Context) ([]overlay.ReportCollection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT imported_at, mode, payload FROM imported_reports ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overlay.ReportCollection
	for rows.Next() {
		var (
			importedAt time.Time
			mode       string
			payload    []byte
		)
		if err := rows.Scan(&importedAt, &mode, &payload); err != nil {
			return nil, err
		}
		var features []overlay.Feature
		if err := json.Unmarshal(payload, &features); err != nil {
			s.log.Warn().Err(err).Time("imported_at", importedAt).Msg("skipping unreadable imported collection")
			continue
		}
		out = append(out, overlay.ReportCollection{
			Features:   features,
			ImportedAt: importedAt,
			Mode:       overlay.Mode(mode),
		})
	}
	return out, rows.Err()
}

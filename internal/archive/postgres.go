package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bonvoyage/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS journey_results (
  request_id   TEXT PRIMARY KEY,
  journeys     JSONB NOT NULL,
  journey_count INTEGER NOT NULL,
  published_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps every published result beyond the store TTL.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	p := &Postgres{db: db, logger: logger.With("component", "archive")}
	if err := p.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive table: %w", err)
	}
	p.logger.Info("archive ready")
	return p, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Save stores the final journeys of a request. Republishing a request
// overwrites the earlier row.
func (p *Postgres) Save(ctx context.Context, requestID string, journeys []domain.Journey) error {
	data, err := encodeJourneys(journeys)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO journey_results (request_id, journeys, journey_count)
VALUES ($1, $2::jsonb, $3)
ON CONFLICT (request_id) DO UPDATE
SET journeys = EXCLUDED.journeys,
    journey_count = EXCLUDED.journey_count,
    published_at = now()`
	if _, err := p.db.ExecContext(ctx, q, requestID, string(data), len(journeys)); err != nil {
		return fmt.Errorf("insert result %s: %w", requestID, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func encodeJourneys(journeys []domain.Journey) ([]byte, error) {
	if journeys == nil {
		journeys = []domain.Journey{}
	}
	data, err := json.Marshal(journeys)
	if err != nil {
		return nil, fmt.Errorf("marshal journeys: %w", err)
	}
	return data, nil
}

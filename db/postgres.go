package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gilby125/tripfinder/config"
	"github.com/lib/pq"
)

// PostgresDB stores search history in PostgreSQL.
type PostgresDB struct {
	db *sql.DB
}

// ConnString builds a lib/pq keyword/value DSN from cfg.
func ConnString(cfg config.PostgresConfig) string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	if cfg.SSLRootCert != "" {
		connStr += " sslrootcert=" + cfg.SSLRootCert
	}
	return connStr
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(ctx context.Context, cfg config.PostgresConfig) (*PostgresDB, error) {
	db, err := sql.Open("postgres", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks the connection.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	return runMigrations(ctx, p.db)
}

const insertSearchQuery = `
INSERT INTO search_history (
	id, created_at, outbound_origins, return_origins, outbound_dates, return_dates,
	stay_lengths, blacklist_countries, whitelist_countries, same_airport_return,
	max_distance_km, adults, currency, candidates, itineraries, failed_candidates,
	cheapest_fare, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const listSearchesQuery = `
SELECT id, created_at, outbound_origins, return_origins, outbound_dates, return_dates,
	stay_lengths, blacklist_countries, whitelist_countries, same_airport_return,
	max_distance_km, adults, currency, candidates, itineraries, failed_candidates,
	cheapest_fare, duration_ms
FROM search_history
ORDER BY created_at DESC
LIMIT $1`

// RecordSearch inserts one search history row.
func (p *PostgresDB) RecordSearch(ctx context.Context, rec SearchRecord) error {
	_, err := p.db.ExecContext(ctx, insertSearchQuery, searchArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to record search %s: %w", rec.ID, err)
	}
	return nil
}

// ListSearches returns the most recent searches, newest first.
func (p *PostgresDB) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, listSearchesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var out []SearchRecord
	for rows.Next() {
		rec, err := scanSearchRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate searches: %w", err)
	}
	return out, nil
}

func searchArgs(rec SearchRecord) []any {
	var maxDistance, cheapest sql.NullFloat64
	if rec.MaxDistanceKm != nil {
		maxDistance = sql.NullFloat64{Float64: *rec.MaxDistanceKm, Valid: true}
	}
	if rec.CheapestFare != nil {
		cheapest = sql.NullFloat64{Float64: *rec.CheapestFare, Valid: true}
	}
	return []any{
		rec.ID, rec.CreatedAt,
		pq.Array(rec.OutboundOrigins), pq.Array(rec.ReturnOrigins),
		pq.Array(rec.OutboundDates), pq.Array(rec.ReturnDates),
		pq.Array(rec.StayLengths),
		pq.Array(rec.BlacklistCountries), pq.Array(rec.WhitelistCountries),
		rec.SameAirportReturn, maxDistance, rec.Adults, rec.Currency,
		rec.Candidates, rec.Itineraries, rec.FailedCandidates, cheapest, rec.DurationMs,
	}
}

func scanSearchRecord(row RowScanner) (SearchRecord, error) {
	var rec SearchRecord
	var maxDistance, cheapest sql.NullFloat64
	err := row.Scan(
		&rec.ID, &rec.CreatedAt,
		pq.Array(&rec.OutboundOrigins), pq.Array(&rec.ReturnOrigins),
		pq.Array(&rec.OutboundDates), pq.Array(&rec.ReturnDates),
		pq.Array(&rec.StayLengths),
		pq.Array(&rec.BlacklistCountries), pq.Array(&rec.WhitelistCountries),
		&rec.SameAirportReturn, &maxDistance, &rec.Adults, &rec.Currency,
		&rec.Candidates, &rec.Itineraries, &rec.FailedCandidates, &cheapest, &rec.DurationMs,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan search record: %w", err)
	}
	if maxDistance.Valid {
		rec.MaxDistanceKm = &maxDistance.Float64
	}
	if cheapest.Valid {
		rec.CheapestFare = &cheapest.Float64
	}
	return rec, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection from a postgres:// URI
func NewDB(ctx context.Context, uri string, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "postgres").Logger()
	logger.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			id BIGSERIAL PRIMARY KEY,
			token VARCHAR(255) NOT NULL UNIQUE,
			legend TEXT NOT NULL DEFAULT '',
			credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			transaction_id VARCHAR(255) NOT NULL UNIQUE,
			reference VARCHAR(255) NOT NULL DEFAULT '',
			href TEXT NOT NULL DEFAULT '',
			reg_number VARCHAR(32) NOT NULL DEFAULT '',
			vin VARCHAR(32) NOT NULL DEFAULT '',
			reg_type VARCHAR(8) NOT NULL DEFAULT '',
			used TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_used ON payments(used)`,

		`CREATE TABLE IF NOT EXISTS logs (
			id BIGSERIAL PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL,
			status VARCHAR(32) NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			query_type VARCHAR(32) NOT NULL DEFAULT '',
			reg_type VARCHAR(8),
			ip VARCHAR(64) NOT NULL DEFAULT '',
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			rte VARCHAR(64) NOT NULL DEFAULT '',
			version VARCHAR(32) NOT NULL DEFAULT '',
			promo_token VARCHAR(255)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_date ON logs(date)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_status ON logs(status)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}

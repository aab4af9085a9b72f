// Package postgres implements repositories against PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Schema creates the tables used by the repositories in this package.
const Schema = `
CREATE TABLE IF NOT EXISTS email_suppressions (
	email      TEXT        NOT NULL,
	reason     TEXT        NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (email, reason)
);
CREATE INDEX IF NOT EXISTS email_suppressions_last_seen_idx ON email_suppressions (last_seen DESC);

CREATE TABLE IF NOT EXISTS app_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies Schema. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("migrate: %s (%s): %w", pqErr.Message, pqErr.Code.Name(), err)
		}
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open connects to url with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, url string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

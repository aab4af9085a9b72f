package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/bulkmail/internal/settings"
)

var _ settings.Store = (*SettingsRepo)(nil)

// SettingsRepo is a settings.Store backed by the app_settings table.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings store.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the stored value for key. A missing row or a NULL value is
// reported as absent.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = $1`, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v.String, v.Valid, nil
}

// Set stores value under key.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

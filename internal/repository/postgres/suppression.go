package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

var _ suppression.Repository = (*SuppressionRepo)(nil)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

// Upsert relies on the (email, reason) primary key; LEAST/GREATEST keep the
// merge commutative under concurrent writers.
func (r *SuppressionRepo) Upsert(ctx context.Context, address string, reason domain.SuppressionReason, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_suppressions (email, reason, first_seen, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (email, reason) DO UPDATE SET
			first_seen = LEAST(email_suppressions.first_seen, EXCLUDED.first_seen),
			last_seen  = GREATEST(email_suppressions.last_seen, EXCLUDED.last_seen)
	`, address, string(reason), ts.UTC())
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, address string, reason domain.SuppressionReason) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM email_suppressions WHERE email = $1 AND reason = $2`,
		address, string(reason),
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) Find(ctx context.Context, address string) ([]domain.SuppressionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, reason, first_seen, last_seen
		FROM email_suppressions
		WHERE email = $1
		ORDER BY reason
	`, address)
	if err != nil {
		return nil, fmt.Errorf("find suppressions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionRecord, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Reason != "" {
		args = append(args, string(f.Reason))
		where = append(where, fmt.Sprintf("reason = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(f.Search))+"%")
		where = append(where, fmt.Sprintf(`email LIKE $%d ESCAPE '\'`, len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_suppressions`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT email, reason, first_seen, last_seen
		FROM email_suppressions%s
		ORDER BY last_seen DESC, email, reason
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanRecords(rows *sql.Rows) ([]domain.SuppressionRecord, error) {
	var out []domain.SuppressionRecord
	for rows.Next() {
		var (
			rec    domain.SuppressionRecord
			reason string
		)
		if err := rows.Scan(&rec.Address, &reason, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		rec.Reason = domain.SuppressionReason(reason)
		rec.FirstSeen = rec.FirstSeen.UTC()
		rec.LastSeen = rec.LastSeen.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

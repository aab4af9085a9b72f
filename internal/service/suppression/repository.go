package suppression

import (
	"context"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Addresses passed in are already normalized.
type Repository interface {
	// Upsert records an observation at ts. A new record gets
	// FirstSeen = LastSeen = ts; an existing one keeps the earlier
	// FirstSeen and the later LastSeen. It must be atomic per
	// (address, reason).
	Upsert(ctx context.Context, address string, reason domain.SuppressionReason, ts time.Time) error

	// Remove deletes the record for (address, reason). Returns ErrNotFound
	// if it doesn't exist.
	Remove(ctx context.Context, address string, reason domain.SuppressionReason) error

	// Find returns every record for address, ordered by reason.
	Find(ctx context.Context, address string) ([]domain.SuppressionRecord, error)

	// List returns records matching the filter and the total match count.
	List(ctx context.Context, filter ListFilter) ([]domain.SuppressionRecord, int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason domain.SuppressionReason
	Search string
	Limit  int
	Offset int
}

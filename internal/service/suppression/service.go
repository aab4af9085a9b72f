package suppression

import (
	"context"
	"fmt"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Apply folds one normalized event into the suppression list. Bounces,
// complaints and unsubscribes upsert a record; other kinds are ignored.
// It reports whether the list was touched.
func (s *Service) Apply(ctx context.Context, ev *domain.EmailEvent) (bool, error) {
	if ev == nil {
		return false, nil
	}
	reason, ok := domain.ReasonForKind(ev.Kind)
	if !ok {
		return false, nil
	}
	addr := domain.NormalizeAddress(ev.Recipient)
	if addr == "" {
		return false, ErrInvalidAddress
	}

	if err := s.repo.Upsert(ctx, addr, reason, ev.Timestamp.UTC()); err != nil {
		return false, fmt.Errorf("apply %s for %s: %w", reason, ev.Provider, err)
	}
	return true, nil
}

// ApplyBatch applies events in order and returns how many touched the list.
// It stops at the first error so callers can avoid advancing a cursor past
// unapplied events.
func (s *Service) ApplyBatch(ctx context.Context, events []*domain.EmailEvent) (int, error) {
	applied := 0
	for _, ev := range events {
		ok, err := s.Apply(ctx, ev)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// Remove deletes the record for one reason, leaving other reasons for the
// same address in place.
func (s *Service) Remove(ctx context.Context, address string, reason domain.SuppressionReason) error {
	addr := domain.NormalizeAddress(address)
	if addr == "" {
		return ErrInvalidAddress
	}
	if !reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	if err := s.repo.Remove(ctx, addr, reason); err != nil {
		return err
	}
	logger.Info("suppression removed", "address", addr, "reason", string(reason))
	return nil
}

// IsSuppressed checks whether an address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, address string) (bool, error) {
	recs, err := s.Records(ctx, address)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Records returns every record held for address.
func (s *Service) Records(ctx context.Context, address string) ([]domain.SuppressionRecord, error) {
	addr := domain.NormalizeAddress(address)
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	return s.repo.Find(ctx, addr)
}

// List returns records matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionRecord, int, error) {
	if filter.Reason != "" && !filter.Reason.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidReason, filter.Reason)
	}
	return s.repo.List(ctx, filter)
}

// Stats returns aggregate counts grouped by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes suppression statistics for the admin API.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByReason: make(map[string]int)}
	for _, r := range []domain.SuppressionReason{domain.ReasonBounce, domain.ReasonComplaint, domain.ReasonUnsubscribe} {
		_, n, err := s.repo.List(ctx, ListFilter{Reason: r, Limit: 1})
		if err != nil {
			return nil, err
		}
		stats.ByReason[string(r)] = n
		stats.Total += n
	}
	return stats, nil
}

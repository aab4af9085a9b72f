// Package memory provides in-process repository implementations.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

var _ suppression.Repository = (*SuppressionRepo)(nil)

// entry holds every record of one address. Writers to the same address are
// serialized by mu; different addresses never contend.
type entry struct {
	mu      sync.RWMutex
	records map[domain.SuppressionReason]*domain.SuppressionRecord
}

// SuppressionRepo implements suppression.Repository in memory.
type SuppressionRepo struct {
	entries sync.Map // address -> *entry
}

// NewSuppressionRepo creates an empty in-memory suppression repository.
func NewSuppressionRepo() *SuppressionRepo { return &SuppressionRepo{} }

func (r *SuppressionRepo) entry(address string) *entry {
	if e, ok := r.entries.Load(address); ok {
		return e.(*entry)
	}
	e, _ := r.entries.LoadOrStore(address, &entry{
		records: make(map[domain.SuppressionReason]*domain.SuppressionRecord),
	})
	return e.(*entry)
}

func (r *SuppressionRepo) Upsert(_ context.Context, address string, reason domain.SuppressionReason, ts time.Time) error {
	e := r.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.records[reason]; ok {
		rec.Merge(ts)
		return nil
	}
	e.records[reason] = &domain.SuppressionRecord{
		Address:   address,
		Reason:    reason,
		FirstSeen: ts,
		LastSeen:  ts,
	}
	return nil
}

func (r *SuppressionRepo) Remove(_ context.Context, address string, reason domain.SuppressionReason) error {
	v, ok := r.entries.Load(address)
	if !ok {
		return suppression.ErrNotFound
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.records[reason]; !ok {
		return suppression.ErrNotFound
	}
	delete(e.records, reason)
	return nil
}

func (r *SuppressionRepo) Find(_ context.Context, address string) ([]domain.SuppressionRecord, error) {
	v, ok := r.entries.Load(address)
	if !ok {
		return nil, nil
	}
	return v.(*entry).snapshot(), nil
}

func (r *SuppressionRepo) List(_ context.Context, f suppression.ListFilter) ([]domain.SuppressionRecord, int, error) {
	var all []domain.SuppressionRecord
	r.entries.Range(func(k, v any) bool {
		if f.Search != "" && !strings.Contains(k.(string), strings.ToLower(f.Search)) {
			return true
		}
		for _, rec := range v.(*entry).snapshot() {
			if f.Reason == "" || rec.Reason == f.Reason {
				all = append(all, rec)
			}
		}
		return true
	})

	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastSeen.Equal(all[j].LastSeen) {
			return all[i].LastSeen.After(all[j].LastSeen)
		}
		if all[i].Address != all[j].Address {
			return all[i].Address < all[j].Address
		}
		return all[i].Reason < all[j].Reason
	})

	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (e *entry) snapshot() []domain.SuppressionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.SuppressionRecord, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}

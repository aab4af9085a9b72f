package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CursorKeyPrefix namespaces analytics cursors in Redis.
const CursorKeyPrefix = "bulkmail:analytics:cursor:"

// CursorStore persists the timestamp of the newest processed event per
// provider. Load reports found=false for a provider that has never
// completed a cycle.
type CursorStore interface {
	Load(ctx context.Context, provider string) (time.Time, bool, error)
	Save(ctx context.Context, provider string, ts time.Time) error
}

// RedisCursorStore keeps cursors as RFC3339Nano strings in Redis.
type RedisCursorStore struct {
	client *redis.Client
}

// NewRedisCursorStore creates a cursor store on client.
func NewRedisCursorStore(client *redis.Client) *RedisCursorStore {
	return &RedisCursorStore{client: client}
}

func (s *RedisCursorStore) Load(ctx context.Context, provider string) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, CursorKeyPrefix+provider).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load cursor %s: %w", provider, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cursor %s: %w", provider, err)
	}
	return ts.UTC(), true, nil
}

func (s *RedisCursorStore) Save(ctx context.Context, provider string, ts time.Time) error {
	if err := s.client.Set(ctx, CursorKeyPrefix+provider, ts.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("save cursor %s: %w", provider, err)
	}
	return nil
}

// MemoryCursorStore is a process-local CursorStore.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]time.Time
}

// NewMemoryCursorStore creates an empty store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]time.Time)}
}

func (s *MemoryCursorStore) Load(_ context.Context, provider string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.cursors[provider]
	return ts, ok, nil
}

func (s *MemoryCursorStore) Save(_ context.Context, provider string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[provider] = ts.UTC()
	return nil
}

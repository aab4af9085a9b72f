// Package distlock provides the locks that keep one analytics poll cycle per
// provider running at a time, across processes when Redis or PostgreSQL is
// available and within the process otherwise.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or extending a lock this instance
// does not own.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory creates a fresh lock instance for key.
type Factory func(key string) DistLock

// NewFactory returns a Factory using the best available backend: Redis when
// redisClient is non-nil, PostgreSQL advisory locks when db is non-nil,
// and an in-process lock otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) DistLock { return NewRedisLock(redisClient, key, ttl) }
	case db != nil:
		return func(key string) DistLock { return NewPGAdvisoryLock(db, key) }
	}
	local := NewLocalLocks()
	return local.Lock
}

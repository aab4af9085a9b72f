package distlock

import (
	"context"
	"sync"
)

// LocalLocks hands out in-process locks keyed by name. It is the fallback
// for single-instance deployments without Redis or PostgreSQL.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]*localLock
}

// NewLocalLocks creates an empty lock table.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]*localLock)}
}

// Lock returns a new lock instance for key.
func (t *LocalLocks) Lock(key string) DistLock {
	return &localLock{table: t, key: key}
}

type localLock struct {
	table *LocalLocks
	key   string
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = l
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] != l {
		return ErrNotHeld
	}
	delete(l.table.held, l.key)
	return nil
}

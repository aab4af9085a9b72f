// Package settings resolves provider credentials through an ordered
// precedence: explicit deployment config first, then the stored-settings
// collaborator. When neither source yields a value the credential is absent
// and the owning adapter reports itself as not configured.
package settings

import (
	"context"
	"strings"
	"sync"

	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// Store is the stored-settings collaborator. Get returns (value, found, err).
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Keys of the stored settings consulted by the provider adapters.
const (
	KeyPostmarkAPIToken = "postmark.api_token"
	KeyPostmarkStreamID = "postmark.stream_id"
	KeyMailgunAPIKey    = "mailgun.api_key"
	KeyMailgunDomain    = "mailgun.domain"
	KeyMailgunBaseURL   = "mailgun.base_url"
	KeySparkPostAPIKey  = "sparkpost.api_key"
	KeySESAccessKey     = "ses.access_key"
	KeySESSecretKey     = "ses.secret_key"
	KeySESRegion        = "ses.region"
	KeyMailingTagPrefix = "mailing.tag_prefix"
)

// Resolver looks values up in config first and stored settings second.
// A nil Resolver or a Resolver without a store resolves config values only.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by the given store (may be nil).
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// String returns configured when it is non-blank, otherwise the stored
// setting for key, otherwise "". Store errors are logged and treated as
// absence so a settings outage degrades to "not configured".
func (r *Resolver) String(ctx context.Context, configured, key string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	if r == nil || r.store == nil {
		return ""
	}
	v, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logger.Warn("settings lookup failed", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// StringDefault is String with a fallback for optional values.
func (r *Resolver) StringDefault(ctx context.Context, configured, key, def string) string {
	if v := r.String(ctx, configured, key); v != "" {
		return v
	}
	return def
}

// MapStore is an in-memory Store.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMapStore creates a MapStore seeded with values.
func NewMapStore(values map[string]string) *MapStore {
	m := &MapStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Get implements Store.
func (m *MapStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores a value.
func (m *MapStore) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

package domain

import (
	"strings"
	"time"
)

// SuppressionReason enumerates why an address was suppressed.
type SuppressionReason string

const (
	ReasonBounce      SuppressionReason = "bounce"
	ReasonComplaint   SuppressionReason = "complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
)

// Valid reports whether r is one of the known reasons.
func (r SuppressionReason) Valid() bool {
	switch r {
	case ReasonBounce, ReasonComplaint, ReasonUnsubscribe:
		return true
	}
	return false
}

// ReasonForKind maps a canonical event kind to its suppression reason.
// Informational kinds (delivered, opened, failed) return false.
func ReasonForKind(k EventKind) (SuppressionReason, bool) {
	switch k {
	case EventBounced:
		return ReasonBounce, true
	case EventComplained:
		return ReasonComplaint, true
	case EventUnsubscribed:
		return ReasonUnsubscribe, true
	}
	return "", false
}

// SuppressionRecord is a standing record that prevents future sends to an
// address. There is at most one record per (Address, Reason).
type SuppressionRecord struct {
	Address   string            `json:"address" db:"email"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	FirstSeen time.Time         `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time         `json:"last_seen" db:"last_seen"`
}

// Merge folds an observation at ts into the record. FirstSeen only moves
// back and LastSeen only moves forward, so the result does not depend on
// the order observations arrive in.
func (s *SuppressionRecord) Merge(ts time.Time) {
	if ts.Before(s.FirstSeen) {
		s.FirstSeen = ts
	}
	if ts.After(s.LastSeen) {
		s.LastSeen = ts
	}
}

// NormalizeAddress lower-cases and trims an e-mail address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

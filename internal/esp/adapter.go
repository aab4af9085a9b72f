package esp

import (
	"context"
	"encoding/json"

	"github.com/ignite/bulkmail/internal/domain"
)

// RawEvent is one provider event exactly as the provider returned it.
type RawEvent = json.RawMessage

// BatchHandler receives one page of raw events, in provider order.
// Returning ErrStopPaging ends the walk cleanly; any other error aborts it.
type BatchHandler func(ctx context.Context, events []RawEvent) error

// Ordering describes how a provider's event query pages through a window.
type Ordering int

const (
	// OldestFirst providers honor Ascending and page oldest-of-window first.
	OldestFirst Ordering = iota
	// NewestFirst providers always page newest first, so a walk can only
	// stop early at the cost of skipping older events.
	NewestFirst
)

// PageQuery is the provider-independent page query. Begin and End are Unix
// seconds; zero means unbounded.
type PageQuery struct {
	Limit     int    `json:"limit"`
	Event     string `json:"event"`
	Begin     int64  `json:"begin,omitempty"`
	End       int64  `json:"end,omitempty"`
	Ascending bool   `json:"ascending"`
}

// Batch is one outbound send call: the message, the recipient variables,
// and the per-recipient payloads already rendered by the batch sender (in
// RecipientData.Addresses order). Adapters with native substitution may send
// Message and Recipients instead of Emails.
type Batch struct {
	Message    domain.Message
	Recipients domain.RecipientData
	Emails     []domain.OutboundEmail
	// Tag is the correlation tag shared by every email of the batch.
	Tag string
}

// Len returns the number of recipients in the batch.
func (b *Batch) Len() int {
	return len(b.Recipients)
}

// EventSource is the analytics half of an adapter.
type EventSource interface {
	Name() string
	// FetchEvents walks the provider's event query page by page, calling
	// handler once per non-empty page. Pages are requested strictly in order.
	FetchEvents(ctx context.Context, q PageQuery, handler BatchHandler) error
	// NormalizeEvent maps one raw provider event to the canonical shape.
	// It returns (nil, nil) for event kinds outside the canonical set.
	NormalizeEvent(raw RawEvent) (*domain.EmailEvent, error)
	Ordering() Ordering
}

// Adapter is the contract every provider implementation satisfies.
type Adapter interface {
	EventSource

	// IsConfigured reports whether credentials resolve to usable values.
	IsConfigured(ctx context.Context) bool
	// BatchSize is the maximum number of recipients per Send call.
	BatchSize() int
	// Send delivers one batch. Recipients the provider rejects are reported
	// in the result, not as an error.
	Send(ctx context.Context, batch *Batch) (*domain.SendResult, error)
	// AnalyticsProvider returns the fetcher configured with this provider's
	// page limit and event filter.
	AnalyticsProvider() *AnalyticsFetcher
}

// CheckBatch returns a BatchLimitError when n exceeds the adapter's limit.
func CheckBatch(provider string, limit, n int) error {
	if n > limit {
		return &BatchLimitError{Provider: provider, Limit: limit, Count: n}
	}
	return nil
}

// StreamSelector is implemented by adapters that route mail through a named
// message stream. The batch sender stamps the stream on every payload.
type StreamSelector interface {
	Stream(ctx context.Context) string
}

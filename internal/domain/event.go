package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the canonical, provider-independent delivery event type.
type EventKind string

const (
	EventDelivered    EventKind = "delivered"
	EventOpened       EventKind = "opened"
	EventBounced      EventKind = "bounced"
	EventComplained   EventKind = "complained"
	EventUnsubscribed EventKind = "unsubscribed"
	EventFailed       EventKind = "failed"
)

// EmailEvent is the canonical record of a delivery-analytics occurrence.
// Only provider adapters construct these, from their raw event payloads.
type EmailEvent struct {
	Kind      EventKind       `json:"kind"`
	Recipient string          `json:"recipient"`
	MessageID string          `json:"message_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Provider  string          `json:"provider"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Suppresses reports whether the event kind mutates the suppression list.
func (k EventKind) Suppresses() bool {
	_, ok := ReasonForKind(k)
	return ok
}

package domain

import (
	"sort"
	"time"
)

// Message is the provider-independent content of one send request.
// It is immutable once handed to the batch sender.
type Message struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
	From       string `json:"from"`
	ReplyTo    string `json:"reply_to,omitempty"`
	TrackOpens bool   `json:"track_opens"`
}

// Well-known recipient variable names.
const (
	VarName            = "name"
	VarUnsubscribeURL  = "unsubscribe_url"
	VarListUnsubscribe = "list_unsubscribe"
)

// RecipientVars holds the named substitution variables for one recipient.
type RecipientVars map[string]string

// RecipientData maps a recipient address to its substitution variables.
type RecipientData map[string]RecipientVars

// Addresses returns the recipient addresses in a stable order.
func (d RecipientData) Addresses() []string {
	out := make([]string, 0, len(d))
	for addr := range d {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// OutboundEmail is the fully-rendered per-recipient payload handed to a
// provider. Field names follow the widest provider shape.
type OutboundEmail struct {
	To         string            `json:"To"`
	From       string            `json:"From"`
	ReplyTo    string            `json:"ReplyTo,omitempty"`
	Subject    string            `json:"Subject"`
	HTMLBody   string            `json:"HtmlBody"`
	TextBody   string            `json:"TextBody,omitempty"`
	TrackOpens bool              `json:"TrackOpens"`
	Stream     string            `json:"MessageStream,omitempty"`
	Tag        string            `json:"Tag"`
	Metadata   map[string]string `json:"Metadata"`
}

// RecipientResult is the outcome of a send for a single recipient.
type RecipientResult struct {
	Address   string `json:"address"`
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendResult is returned by a provider after attempting delivery of a batch.
// A batch where some recipients were rejected is reported here, not as an error.
type SendResult struct {
	Provider   string            `json:"provider"`
	BatchID    string            `json:"batch_id,omitempty"`
	Accepted   int               `json:"accepted"`
	Rejected   int               `json:"rejected"`
	Recipients []RecipientResult `json:"recipients"`
	SentAt     time.Time         `json:"sent_at"`
}

// Add records a recipient outcome and updates the counters.
func (r *SendResult) Add(res RecipientResult) {
	if res.Accepted {
		r.Accepted++
	} else {
		r.Rejected++
	}
	r.Recipients = append(r.Recipients, res)
}

// Partial reports whether some recipients were accepted and others rejected.
func (r *SendResult) Partial() bool {
	return r.Accepted > 0 && r.Rejected > 0
}

// Failed returns the recipients the provider rejected.
func (r *SendResult) Failed() []RecipientResult {
	var out []RecipientResult
	for _, res := range r.Recipients {
		if !res.Accepted {
			out = append(out, res)
		}
	}
	return out
}

package mailing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// DefaultTagPrefix prefixes the correlation tag on every outbound email.
const DefaultTagPrefix = "bulkmail"

// MetadataEmailID is the metadata key carrying the message id.
const MetadataEmailID = "email-id"

// BatchSender renders one message for a batch of recipients and delivers it
// through a provider adapter in one call. It never retries: a failed batch
// is reported to the caller, who decides whether to resend.
type BatchSender struct {
	adapter   esp.Adapter
	tagPrefix string
	now       func() time.Time
}

// Option configures a BatchSender.
type Option func(*BatchSender)

// WithTagPrefix overrides the correlation tag prefix.
func WithTagPrefix(prefix string) Option {
	return func(s *BatchSender) {
		if prefix != "" {
			s.tagPrefix = prefix
		}
	}
}

// NewBatchSender creates a sender bound to adapter.
func NewBatchSender(adapter esp.Adapter, opts ...Option) *BatchSender {
	s := &BatchSender{
		adapter:   adapter,
		tagPrefix: DefaultTagPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the name of the adapter this sender delivers through.
func (s *BatchSender) Provider() string { return s.adapter.Name() }

// BatchSize returns the adapter's per-call recipient limit.
func (s *BatchSender) BatchSize() int { return s.adapter.BatchSize() }

// Tag returns the correlation tag for a message id.
func (s *BatchSender) Tag(messageID string) string {
	return s.tagPrefix + "|" + messageID
}

// Send delivers msg to every recipient in recipients. Batches larger than
// the adapter's limit fail with esp.ErrBatchLimitExceeded before anything is
// rendered or sent; use Chunk to split them.
func (s *BatchSender) Send(ctx context.Context, msg domain.Message, recipients domain.RecipientData) (*domain.SendResult, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("send batch: no recipients")
	}
	if err := esp.CheckBatch(s.adapter.Name(), s.adapter.BatchSize(), len(recipients)); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	batch := s.build(ctx, msg, recipients)

	start := s.now()
	result, err := s.adapter.Send(ctx, batch)
	if err != nil {
		logger.Error("batch send failed",
			"provider", s.adapter.Name(),
			"message_id", msg.ID,
			"recipients", len(recipients),
			"error", err)
		return nil, fmt.Errorf("send batch %s via %s: %w", msg.ID, s.adapter.Name(), err)
	}

	if result.Partial() {
		logger.Warn("batch partially rejected",
			"provider", s.adapter.Name(),
			"message_id", msg.ID,
			"accepted", result.Accepted,
			"rejected", result.Rejected)
	} else {
		logger.Info("batch sent",
			"provider", s.adapter.Name(),
			"message_id", msg.ID,
			"accepted", result.Accepted,
			"rejected", result.Rejected,
			"duration_ms", s.now().Sub(start).Milliseconds())
	}
	return result, nil
}

func (s *BatchSender) build(ctx context.Context, msg domain.Message, recipients domain.RecipientData) *esp.Batch {
	stream := ""
	if sel, ok := s.adapter.(esp.StreamSelector); ok {
		stream = sel.Stream(ctx)
	}
	tag := s.Tag(msg.ID)

	addrs := recipients.Addresses()
	emails := make([]domain.OutboundEmail, 0, len(addrs))
	for _, addr := range addrs {
		subject, html, text := RenderMessage(msg, recipients[addr])
		emails = append(emails, domain.OutboundEmail{
			To:         addr,
			From:       msg.From,
			ReplyTo:    msg.ReplyTo,
			Subject:    subject,
			HTMLBody:   html,
			TextBody:   text,
			TrackOpens: msg.TrackOpens,
			Stream:     stream,
			Tag:        tag,
			Metadata:   map[string]string{MetadataEmailID: msg.ID},
		})
	}

	return &esp.Batch{Message: msg, Recipients: recipients, Emails: emails, Tag: tag}
}

// Chunk splits recipients into batches of at most size recipients, in
// address order.
func Chunk(recipients domain.RecipientData, size int) []domain.RecipientData {
	if size <= 0 {
		return []domain.RecipientData{recipients}
	}
	var out []domain.RecipientData
	cur := domain.RecipientData{}
	for _, addr := range recipients.Addresses() {
		cur[addr] = recipients[addr]
		if len(cur) == size {
			out = append(out, cur)
			cur = domain.RecipientData{}
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

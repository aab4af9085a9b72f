package esp

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
)

// SendFunc delivers one rendered email and returns the provider message id.
type SendFunc func(ctx context.Context, email domain.OutboundEmail) (string, error)

// SendEach delivers a batch one recipient at a time for providers without a
// multi-recipient send call. A recipient the provider refuses is recorded
// as rejected and the loop moves on. When no recipient got through and at
// least one failure was a transport error, the whole batch fails with that
// error. Context cancellation stops the loop; unsent recipients are
// reported as rejected.
func SendEach(ctx context.Context, provider string, batch *Batch, send SendFunc) (*domain.SendResult, error) {
	result := &domain.SendResult{Provider: provider, BatchID: batch.Message.ID}

	var transportErr error
	for _, email := range batch.Emails {
		if err := ctx.Err(); err != nil {
			result.Add(domain.RecipientResult{Address: email.To, Error: err.Error()})
			continue
		}

		id, err := send(ctx, email)
		if err != nil {
			if errors.Is(err, ErrProviderTransport) && transportErr == nil {
				transportErr = err
			}
			result.Add(domain.RecipientResult{Address: email.To, Error: err.Error()})
			continue
		}
		result.Add(domain.RecipientResult{Address: email.To, Accepted: true, MessageID: id})
	}
	result.SentAt = time.Now().UTC()

	if result.Accepted == 0 && transportErr != nil {
		return nil, transportErr
	}
	if result.Accepted == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

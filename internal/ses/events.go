package ses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// FetchEvents walks the account suppression list with NextToken paging.
// Entries are keyed by LastUpdateTime within [Begin, End].
func (c *Client) FetchEvents(ctx context.Context, q esp.PageQuery, handler esp.BatchHandler) error {
	api, err := c.client(ctx)
	if err != nil {
		return err
	}

	base := &sesv2.ListSuppressedDestinationsInput{}
	if q.Limit > 0 {
		base.PageSize = aws.Int32(int32(q.Limit))
	}
	if q.Begin > 0 {
		base.StartDate = aws.Time(time.Unix(q.Begin, 0).UTC())
	}
	if q.End > 0 {
		base.EndDate = aws.Time(time.Unix(q.End, 0).UTC())
	}
	for _, r := range strings.Split(q.Event, ",") {
		if r = strings.TrimSpace(r); r != "" {
			base.Reasons = append(base.Reasons, types.SuppressionListReason(r))
		}
	}

	fetch := func(ctx context.Context, token string) ([]esp.RawEvent, string, error) {
		input := *base
		if token != "" {
			input.NextToken = aws.String(token)
		}

		out, err := api.ListSuppressedDestinations(ctx, &input)
		if err != nil {
			return nil, "", err
		}

		events := make([]esp.RawEvent, 0, len(out.SuppressedDestinationSummaries))
		for _, s := range out.SuppressedDestinationSummaries {
			raw, err := json.Marshal(SuppressedDestination{
				EmailAddress:   aws.ToString(s.EmailAddress),
				Reason:         string(s.Reason),
				LastUpdateTime: aws.ToTime(s.LastUpdateTime).UTC(),
			})
			if err != nil {
				return nil, "", fmt.Errorf("encoding suppressed destination: %w", err)
			}
			events = append(events, raw)
		}
		return events, aws.ToString(out.NextToken), nil
	}

	return esp.WalkPages(ctx, Name, fetch, handler)
}

// NormalizeEvent maps a suppressed destination to a canonical event.
func (c *Client) NormalizeEvent(raw esp.RawEvent) (*domain.EmailEvent, error) {
	var s SuppressedDestination
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding ses event: %w", err)
	}

	var kind domain.EventKind
	switch s.Reason {
	case ReasonBounce:
		kind = domain.EventBounced
	case ReasonComplaint:
		kind = domain.EventComplained
	default:
		logger.Debug("dropping unsupported ses suppression", "reason", s.Reason)
		return nil, nil
	}

	return &domain.EmailEvent{
		Kind:      kind,
		Recipient: domain.NormalizeAddress(s.EmailAddress),
		Timestamp: s.LastUpdateTime.UTC(),
		Provider:  Name,
		Raw:       json.RawMessage(raw),
	}, nil
}

package mailgun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// FetchEvents walks the events API following paging.next until a page comes
// back empty.
func (c *Client) FetchEvents(ctx context.Context, q esp.PageQuery, handler esp.BatchHandler) error {
	cr, err := c.credentials(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Event != "" {
		params.Set("event", q.Event)
	}
	if q.Begin > 0 {
		params.Set("begin", strconv.FormatInt(q.Begin, 10))
	}
	if q.End > 0 {
		params.Set("end", strconv.FormatInt(q.End, 10))
	}
	if q.Ascending {
		params.Set("ascending", "yes")
	}
	first := fmt.Sprintf("%s/v3/%s/events?%s", cr.baseURL, url.PathEscape(cr.domain), params.Encode())

	fetch := func(ctx context.Context, next string) ([]esp.RawEvent, string, error) {
		pageURL := first
		if next != "" {
			pageURL = next
		}

		body, err := c.doRequest(ctx, http.MethodGet, pageURL, cr.apiKey, nil)
		if err != nil {
			return nil, "", err
		}

		var resp struct {
			Items  []json.RawMessage `json:"items"`
			Paging *Paging           `json:"paging"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, "", fmt.Errorf("parsing events response: %w", err)
		}

		if resp.Paging == nil {
			return resp.Items, "", nil
		}
		return resp.Items, resp.Paging.Next, nil
	}

	return esp.WalkPages(ctx, Name, fetch, handler)
}

// NormalizeEvent maps a Mailgun event to a canonical event. Permanent
// failures are bounces; temporary failures stay informational.
func (c *Client) NormalizeEvent(raw esp.RawEvent) (*domain.EmailEvent, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding mailgun event: %w", err)
	}

	var kind domain.EventKind
	switch ev.Event {
	case EventDelivered:
		kind = domain.EventDelivered
	case EventOpened:
		kind = domain.EventOpened
	case EventUnsubscribed:
		kind = domain.EventUnsubscribed
	case EventComplained:
		kind = domain.EventComplained
	case EventFailed:
		kind = domain.EventFailed
		if ev.Severity == SeverityPermanent {
			kind = domain.EventBounced
		}
	default:
		logger.Debug("dropping unsupported mailgun event", "event", ev.Event, "id", ev.ID)
		return nil, nil
	}

	ts, err := esp.ParseTimestamp(ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("mailgun event %s: %w", ev.ID, err)
	}

	out := &domain.EmailEvent{
		Kind:      kind,
		Recipient: domain.NormalizeAddress(ev.Recipient),
		Timestamp: ts,
		Provider:  Name,
		Raw:       json.RawMessage(raw),
	}
	if ev.Message != nil {
		out.MessageID = ev.Message.Headers["message-id"]
	}
	return out, nil
}

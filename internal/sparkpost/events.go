package sparkpost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

const eventsPath = "/events/message"

// SparkPost accepts minute precision on from/to.
const dateLayout = "2006-01-02T15:04"

// FetchEvents walks /events/message with cursor paging.
func (c *Client) FetchEvents(ctx context.Context, q esp.PageQuery, handler esp.BatchHandler) error {
	key, err := c.apiKey(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("cursor", "initial")
	if q.Limit > 0 {
		params.Set("per_page", strconv.Itoa(q.Limit))
	}
	if q.Event != "" {
		params.Set("events", q.Event)
	}
	if q.Begin > 0 {
		params.Set("from", time.Unix(q.Begin, 0).UTC().Format(dateLayout))
	}
	if q.End > 0 {
		// round up so the last partial minute stays inside the window
		params.Set("to", time.Unix(q.End+59, 0).UTC().Format(dateLayout))
	}
	first := eventsPath + "?" + params.Encode()

	fetch := func(ctx context.Context, next string) ([]esp.RawEvent, string, error) {
		path := first
		if next != "" {
			path = next
		}

		body, err := c.doRequest(ctx, http.MethodGet, path, key, nil)
		if err != nil {
			return nil, "", err
		}

		var resp struct {
			Results []json.RawMessage `json:"results"`
			Links   struct {
				Next string `json:"next"`
			} `json:"links"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, "", fmt.Errorf("parsing events response: %w", err)
		}
		return resp.Results, relativeLink(resp.Links.Next), nil
	}

	return esp.WalkPages(ctx, Name, fetch, handler)
}

// relativeLink strips the API version prefix SparkPost puts on links so the
// result can be appended to the configured base URL.
func relativeLink(link string) string {
	if link == "" {
		return ""
	}
	if i := strings.Index(link, eventsPath); i >= 0 {
		return link[i:]
	}
	return link
}

// NormalizeEvent maps a SparkPost message event to a canonical event.
func (c *Client) NormalizeEvent(raw esp.RawEvent) (*domain.EmailEvent, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding sparkpost event: %w", err)
	}

	var kind domain.EventKind
	switch ev.Type {
	case EventDelivery:
		kind = domain.EventDelivered
	case EventOpen, EventInitialOpen:
		kind = domain.EventOpened
	case EventBounce, EventOutOfBand:
		kind = domain.EventFailed
		if hardBounceClasses[ev.BounceClass] {
			kind = domain.EventBounced
		}
	case EventPolicyRejection:
		kind = domain.EventFailed
	case EventSpamComplaint:
		kind = domain.EventComplained
	case EventListUnsubscribe, EventLinkUnsubscribe:
		kind = domain.EventUnsubscribed
	default:
		logger.Debug("dropping unsupported sparkpost event", "type", ev.Type, "id", ev.EventID)
		return nil, nil
	}

	ts, err := esp.ParseTimestamp(ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("sparkpost event %s: %w", ev.EventID, err)
	}

	return &domain.EmailEvent{
		Kind:      kind,
		Recipient: domain.NormalizeAddress(ev.RcptTo),
		MessageID: ev.MessageID,
		Timestamp: ts,
		Provider:  Name,
		Raw:       json.RawMessage(raw),
	}, nil
}

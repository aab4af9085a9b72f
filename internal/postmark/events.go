package postmark

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

// maxOffset is the deepest offset+count the bounces endpoint serves.
const maxOffset = 10000

const dateLayout = "2006-01-02T15:04:05"

// FetchEvents walks GET /bounces with offset paging. Postmark has no
// ascending flag on this endpoint, so pages arrive newest first.
//
// When the walk reaches maxOffset it restarts at offset 0 with todate moved
// back to the oldest bounce seen, so windows deeper than the offset limit
// are still read to the end. Bounces on that boundary second are delivered
// twice.
func (c *Client) FetchEvents(ctx context.Context, q esp.PageQuery, handler esp.BatchHandler) error {
	token := c.token(ctx)
	if token == "" {
		return &esp.NotConfiguredError{Provider: Name, Missing: []string{"api_token"}}
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = PageLimit
	}

	fetch := func(ctx context.Context, cursor string) ([]esp.RawEvent, string, error) {
		todate, offset := q.End, 0
		if cursor != "" {
			var err error
			if todate, offset, err = parsePageToken(cursor); err != nil {
				return nil, "", err
			}
		}
		count := limit
		if offset+count > maxOffset {
			count = maxOffset - offset
		}

		params := url.Values{}
		params.Set("count", strconv.Itoa(count))
		params.Set("offset", strconv.Itoa(offset))
		if q.Begin > 0 {
			params.Set("fromdate", time.Unix(q.Begin, 0).UTC().Format(dateLayout))
		}
		if todate > 0 {
			params.Set("todate", time.Unix(todate, 0).UTC().Format(dateLayout))
		}

		body, err := c.doRequest(ctx, http.MethodGet, "/bounces?"+params.Encode(), token, nil)
		if err != nil {
			return nil, "", err
		}

		var resp struct {
			TotalCount int            `json:"TotalCount"`
			Bounces    []esp.RawEvent `json:"Bounces"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, "", fmt.Errorf("parsing bounces response: %w", err)
		}
		events := resp.Bounces

		next := offset + len(events)
		if len(events) == 0 || next >= resp.TotalCount {
			return events, "", nil
		}
		if next < maxOffset {
			return events, pageToken(todate, next), nil
		}

		oldest, err := oldestBounce(events)
		if err != nil {
			return nil, "", err
		}
		if todate > 0 && oldest.Unix() >= todate {
			return nil, "", fmt.Errorf("more than %d bounces at %s, cannot page further", maxOffset, oldest.Format(time.RFC3339))
		}
		logger.Debug("postmark offset limit reached, narrowing window",
			"todate", oldest.Format(time.RFC3339),
			"total", resp.TotalCount)
		return events, pageToken(oldest.Unix(), 0), nil
	}

	return esp.WalkPages(ctx, Name, fetch, handler)
}

// pageToken encodes the window end and offset of the next bounces request.
func pageToken(todate int64, offset int) string {
	return strconv.FormatInt(todate, 10) + ":" + strconv.Itoa(offset)
}

func parsePageToken(token string) (int64, int, error) {
	end, off, ok := strings.Cut(token, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid page token %q", token)
	}
	todate, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page token %q: %w", token, err)
	}
	offset, err := strconv.Atoi(off)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page token %q: %w", token, err)
	}
	return todate, offset, nil
}

// oldestBounce returns the earliest BouncedAt in a page.
func oldestBounce(events []esp.RawEvent) (time.Time, error) {
	var oldest time.Time
	for _, raw := range events {
		var b Bounce
		if err := json.Unmarshal(raw, &b); err != nil {
			return time.Time{}, fmt.Errorf("decoding postmark bounce: %w", err)
		}
		ts, err := esp.ParseTimestamp(b.BouncedAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("postmark bounce %d: %w", b.ID, err)
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest, nil
}

// NormalizeEvent maps a Postmark bounce record to a canonical event.
func (c *Client) NormalizeEvent(raw esp.RawEvent) (*domain.EmailEvent, error) {
	var b Bounce
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decoding postmark event: %w", err)
	}

	var kind domain.EventKind
	switch b.Type {
	case TypeHardBounce:
		kind = domain.EventBounced
	case TypeSpamComplaint:
		kind = domain.EventComplained
	case TypeUnsubscribe:
		kind = domain.EventUnsubscribed
	case TypeSoftBounce, TypeTransient:
		kind = domain.EventFailed
	default:
		logger.Debug("dropping unsupported postmark event", "type", b.Type, "id", b.ID)
		return nil, nil
	}

	ts, err := esp.ParseTimestamp(b.BouncedAt)
	if err != nil {
		return nil, fmt.Errorf("postmark event %d: %w", b.ID, err)
	}

	return &domain.EmailEvent{
		Kind:      kind,
		Recipient: domain.NormalizeAddress(b.Email),
		MessageID: b.MessageID,
		Timestamp: ts,
		Provider:  Name,
		Raw:       json.RawMessage(raw),
	}, nil
}

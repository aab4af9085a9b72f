// Package postmark implements the esp.Adapter contract on top of the
// Postmark batch email and bounce APIs.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/httpretry"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/settings"
)

const (
	// Name identifies this provider in config, logs and cursors.
	Name = "postmark"

	// MaxBatchSize is the /email/batch recipient limit.
	MaxBatchSize = 500

	// PageLimit is the number of events requested per page.
	PageLimit = 300

	// DefaultStream is used when no stream is configured.
	DefaultStream = "broadcast"
)

// EventFilter lists the canonical kinds requested from Postmark.
var EventFilter = esp.JoinKinds(" OR ",
	domain.EventDelivered,
	domain.EventOpened,
	domain.EventFailed,
	domain.EventUnsubscribed,
	domain.EventComplained,
)

var (
	_ esp.Adapter        = (*Client)(nil)
	_ esp.StreamSelector = (*Client)(nil)
)

// Client is a Postmark API client
type Client struct {
	baseURL    string
	cfg        config.PostmarkConfig
	settings   *settings.Resolver
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// NewClient creates a new Postmark API client. Credentials are resolved on
// every call: deployment config first, then stored settings.
func NewClient(cfg config.PostmarkConfig, resolver *settings.Resolver) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		cfg:      cfg,
		settings: resolver,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
		now: time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// BatchSize returns the per-call recipient limit.
func (c *Client) BatchSize() int { return MaxBatchSize }

// Ordering reports that Postmark pages bounces newest first.
func (c *Client) Ordering() esp.Ordering { return esp.NewestFirst }

func (c *Client) token(ctx context.Context) string {
	return c.settings.String(ctx, c.cfg.APIToken, settings.KeyPostmarkAPIToken)
}

// Stream returns the message stream for broadcast mail.
func (c *Client) Stream(ctx context.Context) string {
	return c.settings.StringDefault(ctx, c.cfg.StreamID, settings.KeyPostmarkStreamID, DefaultStream)
}

// IsConfigured reports whether a server token resolves.
func (c *Client) IsConfigured(ctx context.Context) bool {
	return c.token(ctx) != ""
}

// AnalyticsProvider returns the Postmark analytics fetcher.
func (c *Client) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(c, PageLimit, EventFilter)
}

// doRequest makes an HTTP request to the Postmark API with the server token
func (c *Client) doRequest(ctx context.Context, method, path, token string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Postmark-Server-Token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &esp.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// Send delivers a pre-rendered batch through POST /email/batch.
func (c *Client) Send(ctx context.Context, batch *esp.Batch) (*domain.SendResult, error) {
	if err := esp.CheckBatch("Postmark", MaxBatchSize, len(batch.Emails)); err != nil {
		return nil, err
	}
	token := c.token(ctx)
	if token == "" {
		return nil, &esp.NotConfiguredError{Provider: Name, Missing: []string{"api_token"}}
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/email/batch", token, batch.Emails)
	if err != nil {
		return nil, esp.WrapHTTPError(Name, esp.OpSend, err)
	}

	var items []BatchResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parsing batch response: %w", err)
	}

	result := &domain.SendResult{Provider: Name, BatchID: batch.Message.ID, SentAt: c.now().UTC()}
	for i, email := range batch.Emails {
		if i >= len(items) {
			result.Add(domain.RecipientResult{Address: email.To, Error: "missing from provider response"})
			continue
		}
		item := items[i]
		if item.ErrorCode != 0 {
			result.Add(domain.RecipientResult{
				Address: email.To,
				Error:   fmt.Sprintf("%d: %s", item.ErrorCode, item.Message),
			})
			continue
		}
		result.Add(domain.RecipientResult{Address: email.To, Accepted: true, MessageID: item.MessageID})
	}

	if result.Rejected > 0 {
		logger.Warn("postmark rejected recipients",
			"message_id", batch.Message.ID,
			"rejected", result.Rejected)
	}
	return result, nil
}

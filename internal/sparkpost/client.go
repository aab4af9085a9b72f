// Package sparkpost implements the esp.Adapter contract on top of the
// SparkPost transmissions and message events APIs.
package sparkpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/httpretry"
	"github.com/ignite/bulkmail/internal/settings"
)

const (
	// Name identifies this provider in config, logs and cursors.
	Name = "sparkpost"

	// MaxBatchSize bounds one Send call. SparkPost receives one
	// transmission per recipient.
	MaxBatchSize = 100

	// PageLimit is the per_page value for the events API.
	PageLimit = 1000
)

// EventFilter is the events API filter: SparkPost's own type names joined
// with commas.
var EventFilter = strings.Join([]string{
	EventDelivery,
	EventInitialOpen,
	EventOpen,
	EventBounce,
	EventOutOfBand,
	EventPolicyRejection,
	EventSpamComplaint,
	EventListUnsubscribe,
	EventLinkUnsubscribe,
}, ",")

var _ esp.Adapter = (*Client)(nil)

// Client is a SparkPost API client
type Client struct {
	baseURL    string
	cfg        config.SparkPostConfig
	settings   *settings.Resolver
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// NewClient creates a new SparkPost API client
func NewClient(cfg config.SparkPostConfig, resolver *settings.Resolver) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
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

// Ordering reports that message events are returned newest first.
func (c *Client) Ordering() esp.Ordering { return esp.NewestFirst }

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key := c.settings.String(ctx, c.cfg.APIKey, settings.KeySparkPostAPIKey)
	if key == "" {
		return "", &esp.NotConfiguredError{Provider: Name, Missing: []string{"api_key"}}
	}
	return key, nil
}

// IsConfigured reports whether an API key resolves.
func (c *Client) IsConfigured(ctx context.Context) bool {
	_, err := c.apiKey(ctx)
	return err == nil
}

// AnalyticsProvider returns the SparkPost analytics fetcher.
func (c *Client) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(c, PageLimit, EventFilter)
}

// doRequest makes an HTTP request to the SparkPost API. path may carry a
// query string.
func (c *Client) doRequest(ctx context.Context, method, path, apiKey string, body interface{}) ([]byte, error) {
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

	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Content-Type", "application/json")

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

// Send submits one transmission per rendered email.
func (c *Client) Send(ctx context.Context, batch *esp.Batch) (*domain.SendResult, error) {
	if err := esp.CheckBatch(Name, MaxBatchSize, len(batch.Emails)); err != nil {
		return nil, err
	}
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	return esp.SendEach(ctx, Name, batch, func(ctx context.Context, email domain.OutboundEmail) (string, error) {
		return c.transmit(ctx, key, email)
	})
}

func (c *Client) transmit(ctx context.Context, key string, email domain.OutboundEmail) (string, error) {
	t := Transmission{
		Options:    &TransmissionOptions{OpenTracking: email.TrackOpens},
		CampaignID: email.Tag,
		Recipients: []Recipient{{Address: Address{Email: email.To}}},
		Content: Content{
			From:    email.From,
			ReplyTo: email.ReplyTo,
			Subject: email.Subject,
			HTML:    email.HTMLBody,
			Text:    email.TextBody,
		},
		Metadata: email.Metadata,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/transmissions", key, t)
	if err != nil {
		return "", esp.WrapHTTPError(Name, esp.OpSend, err)
	}

	var resp TransmissionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing transmission response: %w", err)
	}
	if resp.Results.TotalRejectedRecipients > 0 {
		return "", fmt.Errorf("recipient rejected by sparkpost")
	}
	return resp.Results.ID, nil
}

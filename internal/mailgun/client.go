// Package mailgun implements the esp.Adapter contract on top of the Mailgun
// messages and events APIs.
package mailgun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
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
	Name = "mailgun"

	// MaxBatchSize is the recipient limit of one messages call.
	MaxBatchSize = 1000

	// PageLimit is the events API maximum page size.
	PageLimit = 300
)

// EventFilter is the events API filter expression.
var EventFilter = esp.JoinKinds(" OR ",
	domain.EventDelivered,
	domain.EventOpened,
	domain.EventFailed,
	domain.EventUnsubscribed,
	domain.EventComplained,
)

var _ esp.Adapter = (*Client)(nil)

// Client is a Mailgun API client
type Client struct {
	cfg        config.MailgunConfig
	settings   *settings.Resolver
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// NewClient creates a new Mailgun API client
func NewClient(cfg config.MailgunConfig, resolver *settings.Resolver) *Client {
	return &Client{
		cfg:      cfg,
		settings: resolver,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
		now: time.Now,
	}
}

type credentials struct {
	apiKey  string
	domain  string
	baseURL string
}

func (c *Client) credentials(ctx context.Context) (credentials, error) {
	cr := credentials{
		apiKey:  c.settings.String(ctx, c.cfg.APIKey, settings.KeyMailgunAPIKey),
		domain:  c.settings.String(ctx, c.cfg.Domain, settings.KeyMailgunDomain),
		baseURL: c.settings.StringDefault(ctx, c.cfg.BaseURL, settings.KeyMailgunBaseURL, "https://api.mailgun.net"),
	}
	var missing []string
	if cr.apiKey == "" {
		missing = append(missing, "api_key")
	}
	if cr.domain == "" {
		missing = append(missing, "domain")
	}
	if len(missing) > 0 {
		return cr, &esp.NotConfiguredError{Provider: Name, Missing: missing}
	}
	cr.baseURL = strings.TrimRight(cr.baseURL, "/")
	return cr, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// BatchSize returns the per-call recipient limit.
func (c *Client) BatchSize() int { return MaxBatchSize }

// Ordering reports that the events API honors ascending=yes.
func (c *Client) Ordering() esp.Ordering { return esp.OldestFirst }

// IsConfigured reports whether both API key and sending domain resolve.
func (c *Client) IsConfigured(ctx context.Context) bool {
	_, err := c.credentials(ctx)
	return err == nil
}

// AnalyticsProvider returns the Mailgun analytics fetcher.
func (c *Client) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(c, PageLimit, EventFilter)
}

// doRequest makes an HTTP request to the Mailgun API with Basic Auth
func (c *Client) doRequest(ctx context.Context, method, fullURL, apiKey string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Mailgun uses Basic Auth with "api" as username
	req.SetBasicAuth("api", apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &esp.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// Send delivers the batch in one messages call. The unrendered message is
// sent with recipient-variables; Mailgun expands %recipient.<field>% itself.
func (c *Client) Send(ctx context.Context, batch *esp.Batch) (*domain.SendResult, error) {
	if err := esp.CheckBatch(Name, MaxBatchSize, batch.Len()); err != nil {
		return nil, err
	}
	cr, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	recipientVars, err := json.Marshal(batch.Recipients)
	if err != nil {
		return nil, fmt.Errorf("marshal recipient-variables: %w", err)
	}

	msg := batch.Message
	addrs := batch.Recipients.Addresses()

	form := url.Values{}
	form.Set("from", msg.From)
	for _, addr := range addrs {
		form.Add("to", addr)
	}
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}
	form.Set("recipient-variables", string(recipientVars))
	if batch.Tag != "" {
		form.Set("o:tag", batch.Tag)
	}
	form.Set("v:email-id", msg.ID)
	if msg.TrackOpens {
		form.Set("o:tracking-opens", "yes")
	} else {
		form.Set("o:tracking-opens", "no")
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", cr.baseURL, url.PathEscape(cr.domain))
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, cr.apiKey, form)
	if err != nil {
		return nil, esp.WrapHTTPError(Name, esp.OpSend, err)
	}

	var resp SendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing send response: %w", err)
	}
	id := strings.Trim(resp.ID, "<>")

	result := &domain.SendResult{Provider: Name, BatchID: id, SentAt: c.now().UTC()}
	for _, addr := range addrs {
		result.Add(domain.RecipientResult{Address: addr, Accepted: true, MessageID: id})
	}

	logger.Info("mailgun batch queued", "id", id, "recipients", len(addrs))
	return result, nil
}

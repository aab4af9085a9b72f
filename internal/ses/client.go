// Package ses implements the esp.Adapter contract on top of AWS SES v2:
// one SendEmail call per recipient and the account suppression list as the
// analytics source.
package ses

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	appconfig "github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/esp"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/settings"
)

const (
	// Name identifies this provider in config, logs and cursors.
	Name = "ses"

	// MaxBatchSize bounds one Send call; SES has no bulk send for
	// pre-rendered content so each recipient is its own request.
	MaxBatchSize = 50

	// PageLimit is the ListSuppressedDestinations page size.
	PageLimit = 100

	defaultRegion = "us-east-1"
	charset       = "UTF-8"
)

// EventFilter lists the suppression reasons requested from SES.
var EventFilter = ReasonBounce + "," + ReasonComplaint

var _ esp.Adapter = (*Client)(nil)

type awsCredentials struct {
	accessKey string
	secretKey string
	region    string
}

// Client is an AWS SES v2 adapter
type Client struct {
	cfg      appconfig.SESConfig
	settings *settings.Resolver

	mu      sync.Mutex
	api     API
	creds   awsCredentials
	newAPI  func(ctx context.Context, cr awsCredentials) (API, error)
	timeout time.Duration
}

// NewClient creates an SES adapter. The SDK client is built lazily from
// the credentials that resolve at call time.
func NewClient(cfg appconfig.SESConfig, resolver *settings.Resolver) *Client {
	return &Client{
		cfg:      cfg,
		settings: resolver,
		newAPI:   newSDKClient,
		timeout:  cfg.Timeout(),
	}
}

// newSDKClient loads AWS config with static credentials
func newSDKClient(ctx context.Context, cr awsCredentials) (API, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cr.region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cr.accessKey, cr.secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

func (c *Client) credentials(ctx context.Context) (awsCredentials, error) {
	cr := awsCredentials{
		accessKey: c.settings.String(ctx, c.cfg.AccessKey, settings.KeySESAccessKey),
		secretKey: c.settings.String(ctx, c.cfg.SecretKey, settings.KeySESSecretKey),
		region:    c.settings.StringDefault(ctx, c.cfg.Region, settings.KeySESRegion, defaultRegion),
	}
	var missing []string
	if cr.accessKey == "" {
		missing = append(missing, "access_key")
	}
	if cr.secretKey == "" {
		missing = append(missing, "secret_key")
	}
	if len(missing) > 0 {
		return cr, &esp.NotConfiguredError{Provider: Name, Missing: missing}
	}
	return cr, nil
}

// client returns the SDK client for the current credentials, rebuilding it
// when stored settings changed.
func (c *Client) client(ctx context.Context) (API, error) {
	cr, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil && c.creds == cr {
		return c.api, nil
	}
	api, err := c.newAPI(ctx, cr)
	if err != nil {
		return nil, err
	}
	c.api, c.creds = api, cr
	return api, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// BatchSize returns the per-call recipient limit.
func (c *Client) BatchSize() int { return MaxBatchSize }

// Ordering reports that the suppression list is not time ordered.
func (c *Client) Ordering() esp.Ordering { return esp.NewestFirst }

// IsConfigured reports whether access key and secret resolve.
func (c *Client) IsConfigured(ctx context.Context) bool {
	_, err := c.credentials(ctx)
	return err == nil
}

// AnalyticsProvider returns the SES analytics fetcher.
func (c *Client) AnalyticsProvider() *esp.AnalyticsFetcher {
	return esp.NewAnalyticsFetcher(c, PageLimit, EventFilter)
}

// Send delivers each rendered email with its own SendEmail call.
func (c *Client) Send(ctx context.Context, batch *esp.Batch) (*domain.SendResult, error) {
	if err := esp.CheckBatch(Name, MaxBatchSize, len(batch.Emails)); err != nil {
		return nil, err
	}
	api, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	return esp.SendEach(ctx, Name, batch, func(ctx context.Context, email domain.OutboundEmail) (string, error) {
		return c.sendOne(ctx, api, email)
	})
}

func (c *Client) sendOne(ctx context.Context, api API, email domain.OutboundEmail) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(email.From),
		Destination:      &types.Destination{ToAddresses: []string{email.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(email.HTMLBody), Charset: aws.String(charset)},
				},
			},
		},
		EmailTags: messageTags(email),
	}
	if email.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(email.TextBody), Charset: aws.String(charset)}
	}
	if email.ReplyTo != "" {
		input.ReplyToAddresses = []string{email.ReplyTo}
	}
	if c.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(c.cfg.ConfigurationSet)
	}

	out, err := api.SendEmail(ctx, input)
	if err != nil {
		logger.Debug("ses send failed", "recipient", email.To, "error", err)
		return "", classify(esp.OpSend, err)
	}
	return aws.ToString(out.MessageId), nil
}

// messageTags maps the correlation tag and metadata onto SES message tags.
// SES tag values only allow [A-Za-z0-9_-], so other characters become '_'.
func messageTags(email domain.OutboundEmail) []types.MessageTag {
	var tags []types.MessageTag
	if email.Tag != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("tag"), Value: aws.String(tagValue(email.Tag))})
	}
	for k, v := range email.Metadata {
		tags = append(tags, types.MessageTag{Name: aws.String(tagValue(k)), Value: aws.String(tagValue(v))})
	}
	return tags
}

func tagValue(s string) string {
	b := []byte(s)
	for i, ch := range b {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// classify turns SDK errors into adapter errors: throttling, server faults
// and anything that never reached the API are transport failures, other
// API errors are rejections of that request.
func classify(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch {
		case ae.ErrorFault() == smithy.FaultServer,
			ae.ErrorCode() == "TooManyRequestsException",
			ae.ErrorCode() == "ThrottlingException":
			return &esp.TransportError{Provider: Name, Op: op, Err: err}
		}
		return fmt.Errorf("ses %s rejected: %w", op, err)
	}
	return &esp.TransportError{Provider: Name, Op: op, Err: err}
}

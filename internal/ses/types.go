package ses

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// API is the subset of the SES v2 client used by the adapter.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	ListSuppressedDestinations(ctx context.Context, params *sesv2.ListSuppressedDestinationsInput, optFns ...func(*sesv2.Options)) (*sesv2.ListSuppressedDestinationsOutput, error)
}

// SuppressedDestination is the raw event shape emitted for one entry of the
// account-level suppression list.
type SuppressedDestination struct {
	EmailAddress   string    `json:"email_address"`
	Reason         string    `json:"reason"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// Suppression reasons reported by SES.
const (
	ReasonBounce    = "BOUNCE"
	ReasonComplaint = "COMPLAINT"
)

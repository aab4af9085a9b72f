package postmark

import "time"

// BatchResponseItem is one entry of the /email/batch response, in request
// order. A non-zero ErrorCode means Postmark rejected that recipient.
type BatchResponseItem struct {
	ErrorCode   int       `json:"ErrorCode"`
	Message     string    `json:"Message"`
	MessageID   string    `json:"MessageID"`
	To          string    `json:"To"`
	SubmittedAt time.Time `json:"SubmittedAt"`
}

// BouncesResponse is the body of GET /bounces.
type BouncesResponse struct {
	TotalCount int      `json:"TotalCount"`
	Bounces    []Bounce `json:"Bounces"`
}

// Bounce is a single bounce, complaint or unsubscribe record.
type Bounce struct {
	ID            int64  `json:"ID"`
	Type          string `json:"Type"`
	TypeCode      int    `json:"TypeCode"`
	Name          string `json:"Name"`
	Tag           string `json:"Tag"`
	MessageID     string `json:"MessageID"`
	Email         string `json:"Email"`
	From          string `json:"From"`
	BouncedAt     string `json:"BouncedAt"`
	Inactive      bool   `json:"Inactive"`
	MessageStream string `json:"MessageStream"`
	Description   string `json:"Description"`
}

// Bounce types that map to canonical events. The bounces endpoint does not
// serve delivery or open records.
const (
	TypeHardBounce    = "HardBounce"
	TypeSoftBounce    = "SoftBounce"
	TypeTransient     = "Transient"
	TypeSpamComplaint = "SpamComplaint"
	TypeUnsubscribe   = "Unsubscribe"
)

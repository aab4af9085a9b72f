package mailgun

// SendResponse is the body returned by the messages endpoint.
type SendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// EventsResponse represents one page of the events API
type EventsResponse struct {
	Items  []Event `json:"items"`
	Paging *Paging `json:"paging,omitempty"`
}

// Paging holds the continuation URLs of an events page
type Paging struct {
	Next     string `json:"next"`
	Previous string `json:"previous"`
	First    string `json:"first"`
	Last     string `json:"last"`
}

// Event represents a single event from the events API
type Event struct {
	ID             string            `json:"id"`
	Timestamp      float64           `json:"timestamp"`
	Event          string            `json:"event"` // "delivered", "opened", "failed", ...
	Recipient      string            `json:"recipient"`
	Tags           []string          `json:"tags"`
	DeliveryStatus *DeliveryStatus   `json:"delivery-status,omitempty"`
	Message        *MessageInfo      `json:"message,omitempty"`
	UserVariables  map[string]string `json:"user-variables,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Severity       string            `json:"severity,omitempty"` // For failures: "permanent", "temporary"
}

// DeliveryStatus represents delivery status info
type DeliveryStatus struct {
	AttemptNo   int    `json:"attempt-no"`
	Code        int    `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// MessageInfo represents message information
type MessageInfo struct {
	Headers map[string]string `json:"headers"`
	Size    int64             `json:"size"`
}

// Event names used by the events API.
const (
	EventDelivered    = "delivered"
	EventOpened       = "opened"
	EventFailed       = "failed"
	EventUnsubscribed = "unsubscribed"
	EventComplained   = "complained"

	SeverityPermanent = "permanent"
)

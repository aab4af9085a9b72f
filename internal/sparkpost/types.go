package sparkpost

// Transmission is the body of POST /transmissions.
type Transmission struct {
	Options    *TransmissionOptions `json:"options,omitempty"`
	CampaignID string               `json:"campaign_id,omitempty"`
	Recipients []Recipient          `json:"recipients"`
	Content    Content              `json:"content"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
}

// TransmissionOptions controls tracking for a transmission.
type TransmissionOptions struct {
	OpenTracking bool `json:"open_tracking"`
}

// Recipient is a single transmission recipient.
type Recipient struct {
	Address Address `json:"address"`
}

// Address is a recipient address.
type Address struct {
	Email string `json:"email"`
}

// Content is the inline content of a transmission.
type Content struct {
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// TransmissionResponse is the body returned by POST /transmissions.
type TransmissionResponse struct {
	Results struct {
		ID                      string `json:"id"`
		TotalAcceptedRecipients int    `json:"total_accepted_recipients"`
		TotalRejectedRecipients int    `json:"total_rejected_recipients"`
	} `json:"results"`
}

// EventsResponse is one page of GET /events/message.
type EventsResponse struct {
	Results    []Event `json:"results"`
	TotalCount int     `json:"total_count"`
	Links      struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Event is a message event.
type Event struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	RcptTo      string `json:"rcpt_to"`
	MessageID   string `json:"message_id"`
	Timestamp   string `json:"timestamp"`
	BounceClass string `json:"bounce_class,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
}

// Event types returned by the events API.
const (
	EventDelivery        = "delivery"
	EventOpen            = "open"
	EventInitialOpen     = "initial_open"
	EventBounce          = "bounce"
	EventOutOfBand       = "out_of_band"
	EventPolicyRejection = "policy_rejection"
	EventSpamComplaint   = "spam_complaint"
	EventListUnsubscribe = "list_unsubscribe"
	EventLinkUnsubscribe = "link_unsubscribe"
)

// hardBounceClasses are the bounce classifications SparkPost treats as
// permanent.
var hardBounceClasses = map[string]bool{
	"10": true, // invalid recipient
	"25": true, // admin failure
	"26": true, // invalid sender
	"30": true, // generic bounce: no RCPT
	"90": true, // unsubscribe
}

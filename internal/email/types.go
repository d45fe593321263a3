package email

type ProviderName string

// OutboundEmail is a single message. Body is the plain-text part; HTML, when
// set, is sent as the alternative part.
type OutboundEmail struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    string   `json:"html,omitempty"`
}

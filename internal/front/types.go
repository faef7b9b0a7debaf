package front

// Conversation statuses reported by the Front API. Only StatusArchived has
// migration significance; anything else is treated as not archived.
const (
	StatusArchived   = "archived"
	StatusUnassigned = "unassigned"
	StatusAssigned   = "assigned"
	StatusDeleted    = "deleted"
)

// MessageTypeEmail is the only channel type that carries an RFC 5322
// Message-ID usable for cross-system matching.
const MessageTypeEmail = "email"

// Conversation is a single Front conversation with its tags and messages.
// Immutable once fetched.
type Conversation struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	CreatedAt float64   `json:"created_at"` // epoch seconds
	Tags      []Tag     `json:"tags"`
	Messages  []Message `json:"-"`
}

// Tag is a Front taxonomy entry attached to conversations.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one message within a conversation. Metadata headers are only
// populated for email-channel messages.
type Message struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	IsInbound  bool        `json:"is_inbound"`
	CreatedAt  float64     `json:"created_at"`
	Recipients []Recipient `json:"recipients"`
	Metadata   Metadata    `json:"metadata"`
}

// Recipient is an address participating in a message.
type Recipient struct {
	Handle string `json:"handle"`
	Role   string `json:"role"` // from, to, cc, bcc
}

// Metadata carries channel-specific headers; for email messages this includes
// the message_id header used for matching.
type Metadata struct {
	Headers map[string]string `json:"headers"`
}

// MessageID returns the raw message_id header, or "" when absent.
func (m Message) MessageID() string {
	if m.Metadata.Headers == nil {
		return ""
	}
	return m.Metadata.Headers["message_id"]
}

// Inbox is a Front inbox, used only as an optional conversation filter.
type Inbox struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

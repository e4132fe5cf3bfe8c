package bluebubbles

import (
	"strings"
	"time"
)

// Webhook event types delivered by the relay. Older server builds emit
// "message" instead of "new-message" for the same event.
const (
	EventNewMessage     = "new-message"
	EventMessage        = "message"
	EventUpdatedMessage = "updated-message"
)

// Handle identifies the iMessage account a message came from.
type Handle struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName,omitempty"`
}

// ChatRef is the chat summary embedded in webhook payloads.
type ChatRef struct {
	GUID           string `json:"guid"`
	ChatIdentifier string `json:"chat_identifier,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
}

// Message is the wire shape shared by webhook payloads and the
// /api/v1/chat/{guid}/message endpoint.
type Message struct {
	GUID        string    `json:"guid"`
	Text        string    `json:"text"`
	IsFromMe    bool      `json:"isFromMe"`
	DateCreated int64     `json:"dateCreated"`
	Handle      *Handle   `json:"handle,omitempty"`
	Chats       []ChatRef `json:"chats,omitempty"`
}

// Time converts the relay's millisecond timestamp.
func (m *Message) Time() time.Time {
	if m == nil || m.DateCreated == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.DateCreated)
}

// SenderAddress resolves the display identity of the message author.
func (m *Message) SenderAddress() string {
	if m == nil {
		return "Unknown"
	}
	if m.IsFromMe {
		return "Me"
	}
	if m.Handle != nil && strings.TrimSpace(m.Handle.Address) != "" {
		return m.Handle.Address
	}
	return "Unknown"
}

// ChatGUID returns the GUID of the chat the message belongs to.
func (m *Message) ChatGUID() string {
	if m == nil {
		return ""
	}
	for _, c := range m.Chats {
		if c.GUID != "" {
			return c.GUID
		}
	}
	return ""
}

// Webhook is the envelope the relay POSTs to registered webhook URLs.
type Webhook struct {
	Type string  `json:"type"`
	Data Message `json:"data"`
}

// IsMessageEvent reports whether the event carries a new inbound message.
// Updated-message events (tapbacks, edits) are not new messages.
func (w *Webhook) IsMessageEvent() bool {
	if w == nil {
		return false
	}
	switch w.Type {
	case EventNewMessage, EventMessage:
		return true
	default:
		return false
	}
}

// Participant is one member of a chat as returned by /api/v1/chat/{guid}.
type Participant struct {
	Address string `json:"address"`
}

type chatDetails struct {
	Participants []Participant `json:"participants"`
}

type sendTextRequest struct {
	ChatGUID            string `json:"chatGuid"`
	TempGUID            string `json:"tempGuid"`
	Message             string `json:"message"`
	Method              string `json:"method"`
	Subject             string `json:"subject"`
	EffectID            string `json:"effectId"`
	SelectedMessageGUID string `json:"selectedMessageGuid"`
}

type messagesEnvelope struct {
	Data []Message `json:"data"`
}

type chatEnvelope struct {
	Data chatDetails `json:"data"`
}

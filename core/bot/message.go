package bot

import (
	"context"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
)

// Message is one incoming chat message plus everything a handler needs to
// answer it. Replies go through the bot's dispatcher, so handlers return
// quickly even when the relay is slow.
type Message struct {
	GUID     string
	Text     string
	Sender   string
	ChatGUID string
	FromMe   bool
	At       time.Time

	// Args holds the remainder after a Command trigger.
	Args string
	// Matches holds capture groups filled in by a Regex matcher.
	Matches []string

	bot *Bot
	ctx context.Context
}

// Context carries the request id and message metadata for logging.
func (m *Message) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// Bot returns the owning bot, for handlers that need shared clients.
func (m *Message) Bot() *Bot { return m.bot }

// Reply sends text back to the message's chat.
func (m *Message) Reply(text string) error {
	return m.bot.SendToChat(m.Context(), m.ChatGUID, text)
}

// ReplyParts splits text on blank lines and sends at most maxParts messages,
// in order, with a short pause between bubbles.
func (m *Message) ReplyParts(text string, maxParts int) error {
	parts := SplitParts(text, maxParts)
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 {
		return m.Reply(parts[0])
	}
	chatGUID := m.ChatGUID
	relay := m.bot.relay
	if err := m.bot.dispatcher.Enqueue(m.Context(), "send_parts", "message/text", func() error {
		for i, part := range parts {
			if i > 0 {
				time.Sleep(partPause)
			}
			if err := relay.SendText(m.Context(), chatGUID, part); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	m.bot.replied.Add(uint64(len(parts)))
	return nil
}

// SendTo sends text to another chat.
func (m *Message) SendTo(chatGUID, text string) error {
	return m.bot.SendToChat(m.Context(), chatGUID, text)
}

// History fetches recent messages from this chat via the relay.
func (m *Message) History(limit int, afterMS int64) ([]bluebubbles.Message, error) {
	return m.bot.relay.ChatMessages(m.Context(), m.ChatGUID, bluebubbles.MessagesQuery{
		Limit: limit,
		After: afterMS,
	})
}

// Participants lists the other addresses in this chat.
func (m *Message) Participants() ([]string, error) {
	return m.bot.relay.Participants(m.Context(), m.ChatGUID)
}

// replyParts resolves the owning bot's reply split cap.
func (m *Message) replyParts() int {
	if m.bot == nil || m.bot.maxReplyParts < 1 {
		return 1
	}
	return m.bot.maxReplyParts
}

const partPause = 700 * time.Millisecond

// SplitParts breaks text on blank lines into at most maxParts messages.
// The last part absorbs whatever remains so nothing is dropped.
func SplitParts(text string, maxParts int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxParts <= 1 {
		return []string{text}
	}
	chunks := strings.Split(text, "\n\n")
	if len(chunks) <= maxParts {
		out := make([]string, 0, len(chunks))
		for _, c := range chunks {
			if s := strings.TrimSpace(c); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	head := chunks[:maxParts-1]
	tail := strings.Join(chunks[maxParts-1:], "\n\n")
	out := make([]string, 0, maxParts)
	for _, c := range head {
		if s := strings.TrimSpace(c); s != "" {
			out = append(out, s)
		}
	}
	if s := strings.TrimSpace(tail); s != "" {
		out = append(out, s)
	}
	return out
}

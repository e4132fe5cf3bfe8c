package bot

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
	"github.com/shrey150/imessage-bots/core/buildinfo"
	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

// maxWebhookBody bounds a single webhook payload. Relay events are small;
// anything past this is garbage.
const maxWebhookBody = 1 << 20

type healthResponse struct {
	Status  string `json:"status"`
	BotName string `json:"bot_name"`
	Version string `json:"version"`
}

type webhookResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (b *Bot) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		BotName: b.name,
		Version: buildinfo.Version,
	})
}

// handleWebhook accepts a relay event, answers immediately, and processes
// the message on its own goroutine so slow handlers never block the relay.
func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event bluebubbles.Webhook
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err := dec.Decode(&event); err != nil {
		logger.Warn(r.Context(), "bot", "webhook.malformed",
			slog.String("status", "error"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 160)),
		)
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Reason: "malformed payload"})
		return
	}

	if reason := ignoreReason(&event); reason != "" {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: reason})
		return
	}

	msg := b.newMessage(&event.Data)
	go b.process(msg)

	writeJSON(w, http.StatusAccepted, webhookResponse{Status: "accepted"})
}

// ignoreReason classifies events the bot never processes. Empty means the
// event is a real message worth handling.
func ignoreReason(event *bluebubbles.Webhook) string {
	if !event.IsMessageEvent() {
		return "not a message"
	}
	if strings.TrimSpace(event.Data.Text) == "" {
		return "no text content"
	}
	if event.Data.ChatGUID() == "" {
		return "no chat guid"
	}
	return ""
}

// newMessage wraps a relay message with a detached context carrying the
// request id and message metadata. Processing outlives the webhook request,
// so the HTTP request context is deliberately not inherited.
func (b *Bot) newMessage(data *bluebubbles.Message) *Message {
	chatGUID := data.ChatGUID()
	sender := data.SenderAddress()

	ctx := logger.WithRID(logger.Background(), logger.BuildRID(chatGUID, data.GUID))
	ctx = logger.WithMessageMeta(ctx, chatGUID, data.GUID, sender)

	return &Message{
		GUID:     data.GUID,
		Text:     data.Text,
		Sender:   sender,
		ChatGUID: chatGUID,
		FromMe:   data.IsFromMe,
		At:       data.Time(),
		bot:      b,
		ctx:      ctx,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn(logger.Background(), "bot", "webhook.encode.fail",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
	}
}

// WriteJSON renders a JSON response for bot-specific HTTP routes registered
// via HandleFunc.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

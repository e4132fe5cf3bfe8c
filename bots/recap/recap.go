// Package recap implements a bot that summarizes what the account owner
// missed in a chat. Every non-own message bumps an unread counter in the
// chat-state store; "!recap N" fetches recent history and condenses it.
package recap

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	"github.com/shrey150/imessage-bots/core/buildinfo"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	corestore "github.com/shrey150/imessage-bots/core/store"
	"log/slog"
)

const (
	replyNoMessages = "📖 No messages found. Try checking if the chat has any recent messages."
	replyAllFromYou = "📖 All of the recent messages are from you! Nothing new to recap."
	replyError      = "❌ Sorry, something went wrong while generating your recap. Please try again."
)

// App wires the recap bot's AI client and chat-state store.
type App struct {
	cfg   *Config
	ai    *openai.Client
	store corestore.Backend
}

// Bootstrap builds the app from validated configuration and an opened
// chat-state backend.
func Bootstrap(cfg *Config, backend corestore.Backend) (*App, error) {
	if backend == nil {
		return nil, fmt.Errorf("recap: nil store backend")
	}
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("recap: %w", err)
	}
	return &App{cfg: cfg, ai: ai, store: backend}, nil
}

// BuildBot assembles the bot with its handlers and routes. The recap
// trigger only fires on the owner's own messages, so IgnoreOwn stays out.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: "recap-bot", Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.OnMessage("track", a.trackMessage)
	b.OnMessage(a.cfg.Recap.Trigger, corebot.OnlyFromMe(corebot.Command(a.cfg.Recap.Trigger, a.handleRecap)))

	b.HandleFunc("GET /stats", a.handleStats)
	b.HandleFunc("POST /mark-read/{chatGUID}", a.handleMarkRead)
	return b, nil
}

// trackMessage counts every non-own message as unread and always passes.
func (a *App) trackMessage(m *corebot.Message) (string, error) {
	if m.FromMe {
		return "", corebot.ErrPass
	}
	if _, err := a.store.RecordMessage(m.Context(), m.ChatGUID); err != nil {
		logger.Error(m.Context(), "recap", "track.fail",
			slog.String("status", "fail"),
			slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	return "", corebot.ErrPass
}

// handleRecap acknowledges immediately, then fetches and summarizes the
// requested window of messages.
func (a *App) handleRecap(m *corebot.Message) (string, error) {
	count := parseCount(m.Args, a.cfg.Recap.DefaultCount, a.cfg.Recap.MaxCount)

	if err := m.Reply(fmt.Sprintf("📊 Analyzing the last %d messages... This may take a moment.", count)); err != nil {
		return "", err
	}

	raw, err := m.History(count+a.cfg.Recap.FetchBuffer, 0)
	if err != nil {
		logger.Error(m.Context(), "recap", "history.fetch.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return replyError, nil
	}
	if len(raw) == 0 {
		return replyNoMessages, nil
	}

	entries := prepareMessages(raw)
	others := entries[:0:0]
	for _, e := range entries {
		if !e.FromMe {
			others = append(others, e)
		}
	}
	if len(others) > count {
		others = others[:count]
	}
	if len(others) == 0 {
		return replyAllFromYou, nil
	}

	recap, err := a.summarize(m.Context(), m.ChatGUID, others)
	if err != nil {
		logger.Error(m.Context(), "recap", "summarize.fail",
			slog.String("status", "fail"),
			slog.Int("messages", len(others)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return replyError, nil
	}

	logger.Info(m.Context(), "recap", "recap.sent",
		slog.String("status", "ok"),
		slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
		slog.Int("messages", recap.MessagesAnalyzed),
		slog.Int("participants", len(recap.Participants)),
	)
	return formatRecap(recap), nil
}

// parseCount reads an optional message count after the trigger, clamped
// to [1, max].
func parseCount(args string, def, max int) int {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return def
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// formatRecap folds the recap into a single chat bubble.
func formatRecap(r *Recap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Recap of %d messages", r.MessagesAnalyzed)
	if len(r.Participants) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(r.Participants, ", "))
	}
	if r.TimeRange != "" {
		fmt.Fprintf(&sb, " from %s", r.TimeRange)
	}
	fmt.Fprintf(&sb, ": %s", r.Summary)
	return sb.String()
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	states, err := a.store.ListChatStates(r.Context())
	if err != nil {
		corebot.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"bot":     "recap-bot",
		"version": buildinfo.Version,
		"trigger": a.cfg.Recap.Trigger,
		"stats":   corestore.ComputeStats(states),
	})
}

// handleMarkRead manually resets a chat's unread counter with a synthetic
// read marker.
func (a *App) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	chatGUID := r.PathValue("chatGUID")
	if chatGUID == "" {
		corebot.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "missing chat guid"})
		return
	}

	now := time.Now().UnixMilli()
	state, err := a.store.MarkRead(r.Context(), chatGUID, fmt.Sprintf("manual-%d", now), now)
	if err != nil {
		corebot.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"message":      fmt.Sprintf("Marked %s as read", chatGUID),
		"unread_count": state.UnreadCount,
	})
}

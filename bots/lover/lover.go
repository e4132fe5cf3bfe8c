// Package lover implements an AI girlfriend bot pinned to a single chat.
// Each partner message is bucketed by keyword sentiment into a
// conversational stage and answered by an OpenAI persona with rolling
// context; a cron job reaches out on its own once the chat goes quiet.
package lover

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	"github.com/shrey150/imessage-bots/core/buildinfo"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	"github.com/shrey150/imessage-bots/core/state"
	"log/slog"
)

const adminTrigger = "!lover"

// firstMessageDelay gives the HTTP server and relay a moment to come up
// before the startup greeting goes out.
const firstMessageDelay = 2 * time.Second

// App wires the lover bot's conversation manager and persona responder.
type App struct {
	cfg       *Config
	manager   *Manager
	responder *Responder
	bot       *corebot.Bot
}

// Bootstrap builds the app from validated configuration.
func Bootstrap(cfg *Config) (*App, error) {
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("lover: %w", err)
	}
	kv := state.NewKV(cfg.Lover.StatePath)
	return &App{
		cfg:       cfg,
		manager:   NewManager(kv),
		responder: NewResponder(ai, cfg.Lover.LoverName, cfg.Lover.UserName),
	}, nil
}

// BuildBot assembles the bot with its handlers, routes, and the proactive
// schedule. IgnoreOwn stays out because the admin trigger rides on the
// owner's own messages; the chat handler drops them itself.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: "lover-bot", Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.OnMessage("admin", corebot.OnlyFromMe(corebot.Command(adminTrigger, a.handleAdmin)))
	b.OnMessage("chat", a.handleChat)

	b.HandleFunc("GET /stats", a.handleStats)
	b.HandleFunc("GET /conversation/{chatGUID}", a.handleConversation)
	b.HandleFunc("POST /send-message", a.handleSendMessage)

	spec := fmt.Sprintf("@every %dm", a.cfg.Lover.MessageIntervalMinutes)
	if err := b.Schedule(spec, "proactive", a.proactiveTick); err != nil {
		return nil, err
	}

	a.bot = b
	if a.cfg.Lover.SendFirstMessage {
		go a.firstMessage()
	}
	return b, nil
}

// handleChat answers every partner message in the configured chat.
func (a *App) handleChat(m *corebot.Message) (string, error) {
	if m.FromMe || m.ChatGUID != a.cfg.Lover.ChatGUID {
		return "", nil
	}

	stage, mood := a.manager.RecordUserMessage(m.ChatGUID, m.Text)
	tc := a.manager.Context(m.ChatGUID)
	reply := a.responder.RespondTo(m.Context(), m.Text, tc)
	a.manager.MarkSent(m.ChatGUID, reply)

	logger.Info(m.Context(), "lover", "reply.sent",
		slog.String("status", "ok"),
		slog.String("stage", string(stage)),
		slog.String("mood", mood),
	)
	return reply, nil
}

// handleAdmin serves the owner's "!lover" commands: status, send, reset.
func (a *App) handleAdmin(m *corebot.Message) (string, error) {
	cmd := "status"
	if fields := strings.Fields(strings.ToLower(m.Args)); len(fields) > 0 {
		cmd = fields[0]
	}

	switch cmd {
	case "status":
		st := a.manager.Stats()
		ai := a.responder.Stats()
		return fmt.Sprintf("🤖 Lover Bot status:\n• Lover: %s\n• User: %s\n• Interval: every %dm\n\n📊 Stats:\n• Conversations: %d\n• Messages sent: %d\n• AI requests: %d",
			a.cfg.Lover.LoverName, a.cfg.Lover.UserName, a.cfg.Lover.MessageIntervalMinutes,
			st.TotalConversations, st.TotalMessagesSent, ai.Requests), nil
	case "send":
		go func() {
			if _, err := a.sendProactive(logger.Background()); err != nil {
				logger.Error(logger.Background(), "lover", "manual.send.fail",
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
			}
		}()
		return "✅ Sending manual message...", nil
	case "reset":
		a.manager.Clear(a.cfg.Lover.ChatGUID)
		return "✅ Conversation state reset", nil
	}
	return "", corebot.ErrPass
}

// proactiveTick fires on the cron schedule and reaches out when the chat
// has been quiet for a full interval and no reply is owed.
func (a *App) proactiveTick(ctx context.Context) {
	interval := time.Duration(a.cfg.Lover.MessageIntervalMinutes) * time.Minute
	if !a.manager.ShouldSendProactive(a.cfg.Lover.ChatGUID, interval) {
		logger.Debug(ctx, "lover", "proactive.skip",
			slog.String("status", "ignored"),
			slog.String("chat_guid", logger.ShortGUID(a.cfg.Lover.ChatGUID)),
		)
		return
	}
	text, err := a.sendProactive(ctx)
	if err != nil {
		logger.Error(ctx, "lover", "proactive.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, "lover", "proactive.sent",
		slog.String("status", "ok"),
		slog.String("payload", logger.SanitizeLimit(text, 80)),
	)
}

// firstMessage greets the configured chat shortly after startup.
func (a *App) firstMessage() {
	time.Sleep(firstMessageDelay)
	ctx := logger.Background()
	text, err := a.sendProactive(ctx)
	if err != nil {
		logger.Error(ctx, "lover", "first.message.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, "lover", "first.message.sent",
		slog.String("status", "ok"),
		slog.String("payload", logger.SanitizeLimit(text, 80)),
	)
}

// sendProactive generates and sends one unprompted message. Gating
// happens at the call sites; this always sends.
func (a *App) sendProactive(ctx context.Context) (string, error) {
	chatGUID := a.cfg.Lover.ChatGUID
	tc := a.manager.Context(chatGUID)
	text := a.responder.Proactive(ctx, tc)
	if err := a.bot.SendToChat(ctx, chatGUID, text); err != nil {
		return "", err
	}
	a.manager.MarkSent(chatGUID, text)
	return text, nil
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"bot":                a.bot.Name(),
		"version":            buildinfo.Version,
		"conversation_stats": a.manager.Stats(),
		"ai_stats":           a.responder.Stats(),
		"config": map[string]any{
			"lover_name":               a.cfg.Lover.LoverName,
			"user_name":                a.cfg.Lover.UserName,
			"message_interval_minutes": a.cfg.Lover.MessageIntervalMinutes,
		},
	})
}

func (a *App) handleConversation(w http.ResponseWriter, r *http.Request) {
	chatGUID := r.PathValue("chatGUID")
	view, ok := a.manager.ConversationInfo(chatGUID)
	if !ok {
		corebot.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error": "conversation not found",
		})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, view)
}

// handleSendMessage forces one proactive message out, skipping the
// interval gate. Meant for manual nudges and smoke checks. The send is
// queued on a detached context so it survives the request.
func (a *App) handleSendMessage(w http.ResponseWriter, _ *http.Request) {
	ctx := logger.WithRID(logger.Background(), logger.BuildRID(a.cfg.Lover.ChatGUID, "manual"))
	text, err := a.sendProactive(ctx)
	if err != nil {
		corebot.WriteJSON(w, http.StatusBadGateway, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": text,
	})
}

// Package gork implements a single-chat bot that sarcastically explains
// the message posted right before an "@gork" mention.
package gork

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	"github.com/shrey150/imessage-bots/core/state"
	"log/slog"
)

const analysisPrefix = "gork's analysis:\n\n"

const (
	analysisTemperature = 0.8
	analysisMaxTokens   = 500
)

const systemPrompt = `You are Gork, a brutally sarcastic and dismissive AI that explains messages with cutting wit. You're not here to be nice. You roast people and their messages with razor-sharp sarcasm.

Your personality traits:
- Extremely sarcastic and cutting, bordering on harsh
- Dismissive and superior attitude
- Makes assumptions about people and calls them out
- Uses lowercase writing style mostly
- Minimal to no emojis (avoid them unless absolutely necessary)
- Direct and brutal in your assessments
- Makes fun of obvious things people say or do
- Uses phrases like "classic", "bold move", "how original"
- Often implies the person is boring, predictable, or trying too hard
- Points out the obvious with heavy sarcasm

Write in a casual, lowercase style. Be cutting and harsh while explaining what they asked about. Don't try to be helpful or nice.`

const (
	replyNoRequest = "oh wow, summoning me with zero instructions. classic move from someone who probably thinks " +
		"mysterious silence is compelling. try '@gork explain what they meant' or '@gork why is this " +
		"funny' next time. i'm here to roast messages, not read your mind"
	replyNoPrevious = "asking me to explain a previous message when there isn't one. brilliant logic from someone " +
		"who probably thinks starting conversations is optional. maybe try having an actual chat first"
	replyBroken = "great, something broke while i was preparing to roast your message. how fitting. try again i guess"
)

// App wires the gork bot's AI client and rolling chat history.
type App struct {
	cfg     *Config
	ai      *openai.Client
	history *state.Tracker
}

// Bootstrap builds the app from validated configuration.
func Bootstrap(cfg *Config) (*App, error) {
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("gork: %w", err)
	}
	history := state.NewTracker(state.TrackerOptions{
		MaxHistory: cfg.Gork.HistoryLimit,
		TTL:        time.Duration(cfg.Gork.HistoryTTLHours) * time.Hour,
	})
	return &App{cfg: cfg, ai: ai, history: history}, nil
}

// BuildBot assembles the bot with its middlewares, handlers, and routes.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: "gork-bot", Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.Use(corebot.IgnoreOwn)
	b.Use(onlyChat(a.cfg.Gork.ChatGUID))

	b.OnMessage("track", a.trackMessage)
	b.OnMessage(a.cfg.Gork.Trigger, corebot.Command(a.cfg.Gork.Trigger, a.explainPrevious))

	b.HandleFunc("GET /stats", a.handleStats)
	return b, nil
}

// onlyChat drops messages from every chat except the configured one.
func onlyChat(chatGUID string) corebot.Middleware {
	return func(next corebot.Handler) corebot.Handler {
		return func(m *corebot.Message) (string, error) {
			if chatGUID != "" && m.ChatGUID != chatGUID {
				return "", nil
			}
			return next(m)
		}
	}
}

// trackMessage records every message for later context and always passes
// the message on to the trigger handler.
func (a *App) trackMessage(m *corebot.Message) (string, error) {
	a.history.AppendHistory(m.ChatGUID, state.Entry{
		GUID:   m.GUID,
		Sender: m.Sender,
		Text:   m.Text,
		FromMe: m.FromMe,
		At:     m.At,
	})
	return "", corebot.ErrPass
}

// explainPrevious answers an "@gork ..." mention by roasting the message
// that came before it.
func (a *App) explainPrevious(m *corebot.Message) (string, error) {
	request := strings.TrimSpace(m.Args)
	if request == "" {
		return replyNoRequest, nil
	}

	prev, ok := a.history.Previous(m.ChatGUID)
	if !ok {
		return replyNoPrevious, nil
	}

	prompt := userPrompt(request, prev.Text, a.contextBefore(m.ChatGUID))
	explanation, err := a.ai.CompleteText(m.Context(), systemPrompt, prompt, analysisTemperature, analysisMaxTokens)
	if err != nil {
		logger.Error(m.Context(), "gork", "analysis.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return replyBroken, nil
	}

	return analysisPrefix + explanation, nil
}

// contextBefore returns the most recent message texts, excluding the
// trigger message itself.
func (a *App) contextBefore(chatGUID string) []string {
	entries := a.history.Recent(chatGUID, a.cfg.Gork.ContextMessages+1)
	if len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return texts
}

func userPrompt(request, previous string, context []string) string {
	var sb strings.Builder
	if len(context) > 0 {
		sb.WriteString("Recent conversation context:\n")
		for _, line := range context {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Previous message to explain: %q\n\n", previous)
	fmt.Fprintf(&sb, "User wants you to explain: %s", request)
	return sb.String()
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"chat_history": a.history.Stats(),
		"config": map[string]string{
			"trigger_phrase": a.cfg.Gork.Trigger,
			"chat_guid":      a.cfg.Gork.ChatGUID,
		},
	})
}

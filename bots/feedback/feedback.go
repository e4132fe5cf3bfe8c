// Package feedback implements a user-interview bot that collects product
// feedback over iMessage, probes with Mom Test questions, aggregates
// anonymized cross-chat insights, and files finished sessions as Linear
// issues.
package feedback

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	"github.com/shrey150/imessage-bots/core/linear"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
)

// App bundles the feedback bot's collaborators.
type App struct {
	cfg       *Config
	manager   *Manager
	responder *Responder
	triager   *Triager // nil when the Linear integration is off
	bot       *corebot.Bot
}

// Bootstrap builds the manager, responder, and optional triager.
func Bootstrap(cfg *Config) (*App, error) {
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, err
	}
	app := &App{
		cfg:       cfg,
		manager:   NewManager(cfg.Feedback),
		responder: NewResponder(ai, cfg.Feedback),
	}
	if cfg.Linear.Enabled {
		lc, err := linear.New(linear.Options{
			APIKey:  cfg.Linear.APIKey,
			BaseURL: cfg.Linear.BaseURL,
			TeamKey: cfg.Linear.TeamKey,
		})
		if err != nil {
			return nil, err
		}
		app.triager = NewTriager(ai, lc)
	}
	return app, nil
}

// BuildBot assembles the webhook bot around the app.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{
		Name:          "feedback-bot",
		Config:        a.cfg.CoreConfig(),
		MaxReplyParts: 2,
	})
	if err != nil {
		return nil, err
	}

	b.Use(corebot.IgnoreOwn)
	b.Use(a.onlyMonitored)
	b.OnMessage("interview", a.handleMessage)

	b.HandleFunc("GET /stats", a.handleStats)
	b.HandleFunc("GET /cross-chat-insights", a.handleInsights)
	b.HandleFunc("GET /feedback-summary", a.handleSummary)
	b.HandleFunc("POST /triage-to-linear", a.handleTriageAll)
	b.HandleFunc("GET /linear-status", a.handleLinearStatus)
	b.HandleFunc("GET /conversation/{chatGUID}", a.handleConversation)

	a.bot = b
	return b, nil
}

// onlyMonitored drops messages from chats outside the interview list.
func (a *App) onlyMonitored(next corebot.Handler) corebot.Handler {
	return func(m *corebot.Message) (string, error) {
		if !a.cfg.Monitors(m.ChatGUID) {
			return "", nil
		}
		return next(m)
	}
}

// handleMessage runs one interview turn: fold the message into the
// conversation, pick a reply, record what went out, and kick off triage
// when the session has wound down.
func (a *App) handleMessage(m *corebot.Message) (string, error) {
	tc := a.manager.ProcessUserMessage(m.ChatGUID, m.Text)
	reply := a.respond(m, tc)

	for _, part := range corebot.SplitParts(reply, 2) {
		a.manager.MarkBotMessage(m.ChatGUID, part)
	}

	if a.cfg.Feedback.CrossChatInsights && tc.HasFeedback && tc.FeedbackCollected > 0 {
		go a.broadcastProbes(m.ChatGUID)
	}

	if a.triager != nil && a.cfg.Linear.AutoTriage &&
		tc.FeedbackCollected > 0 && a.manager.SessionEnding(m.ChatGUID) {
		go a.autoTriage(m.ChatGUID)
	}
	return reply, nil
}

// respond picks the reply strategy for one turn. Cross-chat probes and
// canned fallbacks short-circuit the AI.
func (a *App) respond(m *corebot.Message, tc TurnContext) string {
	ctx := m.Context()
	switch {
	case tc.NewConversation && tc.FeedbackCollected == 0:
		text, err := a.responder.Welcome(ctx)
		if err != nil {
			logger.Error(ctx, "feedback", "welcome.fail", slog.String("err", err.Error()))
			return a.responder.WelcomeFallback()
		}
		return text
	case tc.CrossChatProbe != "":
		logger.Debug(ctx, "feedback", "probe.cross_chat",
			slog.String("probe", logger.SanitizeLimit(tc.CrossChatProbe, 80)))
		return tc.CrossChatProbe
	case tc.ShouldProbe:
		text, err := a.responder.Probe(ctx, tc.FeedbackType, m.Text)
		if err != nil {
			logger.Error(ctx, "feedback", "probe.fail", slog.String("err", err.Error()))
			return a.manager.BankProbe(tc.ChatGUID, tc.FeedbackType)
		}
		return text
	default:
		text, err := a.responder.Reply(ctx, m.Text, tc)
		if err != nil {
			logger.Error(ctx, "feedback", "reply.fail",
				slog.String("stage", string(tc.Stage)),
				slog.String("err", err.Error()))
			return a.responder.Fallback(tc.Stage)
		}
		return text
	}
}

// broadcastProbes offers cross-chat probes to every other open
// conversation. Each chat applies its own frequency gate, so most
// broadcasts send nothing.
func (a *App) broadcastProbes(originChat string) {
	ctx := logger.WithRID(logger.Background(), logger.BuildRID(originChat, "broadcast"))
	for _, chatGUID := range a.manager.ActiveChats() {
		if chatGUID == originChat || !a.cfg.Monitors(chatGUID) {
			continue
		}
		probe := a.manager.CrossChatProbeFor(chatGUID)
		if probe == "" {
			continue
		}
		if err := a.bot.SendToChat(ctx, chatGUID, probe); err != nil {
			logger.Warn(ctx, "feedback", "probe.broadcast.fail", slog.String("err", err.Error()))
			continue
		}
		a.manager.MarkBotMessage(chatGUID, probe)
	}
}

// autoTriage files a finished session's feedback as Linear issues.
// BeginTriage guards against double-filing when several session-end
// turns race.
func (a *App) autoTriage(chatGUID string) {
	ctx := logger.WithRID(logger.Background(), logger.BuildRID(chatGUID, "triage"))
	if !a.manager.BeginTriage(chatGUID) {
		logger.Debug(ctx, "feedback", "triage.skip.already_done")
		return
	}
	session := a.manager.CollectForTriage(chatGUID)
	if len(session.Items) == 0 {
		logger.Debug(ctx, "feedback", "triage.skip.empty")
		return
	}

	types := make([]FeedbackType, 0, len(session.Items))
	seen := make(map[FeedbackType]bool)
	for _, item := range session.Items {
		if !seen[item.Type] {
			seen[item.Type] = true
			types = append(types, item.Type)
		}
	}

	issues, err := a.triager.TriageSession(ctx, session, a.manager.InsightsForTriage(types))
	if err != nil {
		logger.Error(ctx, "feedback", "triage.fail", slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, "feedback", "triage.done",
		slog.Int("items", len(session.Items)),
		slog.Int("issues", len(issues)),
	)

	if a.cfg.Linear.NotifyUser && len(issues) > 0 {
		if err := a.bot.SendToChat(ctx, chatGUID, triageNotice(issues)); err != nil {
			logger.Warn(ctx, "feedback", "triage.notify.fail", slog.String("err", err.Error()))
		}
	}
}

func triageNotice(issues []*linear.Issue) string {
	if len(issues) == 1 {
		return fmt.Sprintf("Thanks for all your feedback! I've created an issue to track it: %s 🎯", issues[0].Identifier)
	}
	return fmt.Sprintf("Thanks for all your feedback! I've created %d issues to track the different points you raised 🎯", len(issues))
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := a.manager.Stats()

	types := make([]string, 0, len(stats.FeedbackByType))
	for t := range stats.FeedbackByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	mostCommon := "none"
	best := 0
	for _, t := range types {
		if n := stats.FeedbackByType[FeedbackType(t)]; n > best {
			mostCommon = t
			best = n
		}
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"feedback_collection": stats,
		"summary": map[string]any{
			"total_conversations":  stats.TotalConversations,
			"total_feedback_items": stats.TotalFeedbackItems,
			"active_conversations": stats.ActiveConversations,
			"monitored_chats":      stats.MonitoredChats,
			"cross_chat_insights":  len(stats.CrossChatInsights),
			"most_common_feedback": mostCommon,
		},
	})
}

func (a *App) handleInsights(w http.ResponseWriter, r *http.Request) {
	views := a.manager.InsightViews()
	high := 0
	themes := make([]string, 0, len(views))
	for theme, view := range views {
		themes = append(themes, theme)
		if view.Severity == severityHigh {
			high++
		}
	}
	sort.Strings(themes)
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"insights": views,
		"summary": map[string]any{
			"total_insights":      len(views),
			"high_severity_count": high,
			"themes":              themes,
		},
	})
}

func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	corebot.WriteJSON(w, http.StatusOK, a.manager.FeedbackSummary())
}

func (a *App) handleTriageAll(w http.ResponseWriter, r *http.Request) {
	if a.triager == nil {
		corebot.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "linear integration is disabled",
		})
		return
	}
	items, insights := a.manager.CollectAllForTriage()
	if len(items) == 0 {
		corebot.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "no_feedback",
			"message": "No feedback available to triage",
		})
		return
	}

	go func() {
		ctx := logger.WithRID(logger.Background(), logger.BuildRID("all", "triage"))
		issues, err := a.triager.TriageAll(ctx, items, insights)
		if err != nil {
			logger.Error(ctx, "feedback", "triage.all.fail", slog.String("err", err.Error()))
			return
		}
		logger.Info(ctx, "feedback", "triage.all.done",
			slog.Int("items", len(items)),
			slog.Int("issues", len(issues)),
		)
	}()

	corebot.WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":         "processing",
		"message":        fmt.Sprintf("Triaging %d feedback items to Linear", len(items)),
		"feedback_count": len(items),
	})
}

func (a *App) handleLinearStatus(w http.ResponseWriter, r *http.Request) {
	if a.triager == nil {
		corebot.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "disabled",
			"message": "Linear integration is disabled",
		})
		return
	}
	teams, err := a.triager.LinearClient().Teams(r.Context())
	if err != nil {
		corebot.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	teamID, err := a.triager.LinearClient().TeamID(r.Context())
	connection := "success"
	if err != nil || teamID == "" {
		connection = "failed"
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "enabled",
		"connection":      connection,
		"teams_found":     len(teams),
		"configured_team": a.cfg.Linear.TeamKey,
		"target_team_id":  teamID,
	})
}

func (a *App) handleConversation(w http.ResponseWriter, r *http.Request) {
	chatGUID := r.PathValue("chatGUID")
	info, ok := a.manager.ConversationInfo(chatGUID)
	if !ok {
		corebot.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error": "conversation not found",
		})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, info)
}

// Package roast implements a single-chat bot that scrapes a LinkedIn
// profile link and texts back a snarky career roast. Messages without a
// valid profile link get increasingly impatient nudges.
package roast

import (
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

// Conversation stages for one chat's roast flow.
const (
	StageWaitingForLinkedIn state.Stage = "waiting_for_linkedin"
	StageProcessing         state.Stage = "processing"
)

const (
	replyWorking = "aight. please wait while you waste my time..."
	replyBusy    = "Hold your horses! I'm still analyzing your career disasters... ⏳"
	replyBlocked = "LinkedIn is being more protective than your job security right now. Can't access your profile - they're onto us! 🤖🔒"
)

// App wires the roast bot's scraper, roaster, and per-chat flow state.
type App struct {
	cfg     *Config
	scraper *Scraper
	roaster *Roaster
	flow    *state.Tracker
}

// Bootstrap builds the app from validated configuration.
func Bootstrap(cfg *Config) (*App, error) {
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("roast: %w", err)
	}
	return &App{
		cfg:     cfg,
		scraper: NewScraper(time.Duration(cfg.Roast.ScrapeTimeoutSeconds) * time.Second),
		roaster: NewRoaster(ai),
		flow:    state.NewTracker(state.TrackerOptions{}),
	}, nil
}

// BuildBot assembles the bot with its middlewares, handlers, and routes.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: "resume-roast", Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.Use(corebot.IgnoreOwn)
	b.OnMessage("roast", a.handleMessage)

	b.HandleFunc("GET /stats", a.handleStats)
	return b, nil
}

// handleMessage runs one chat message through the roast flow.
func (a *App) handleMessage(m *corebot.Message) (string, error) {
	if m.ChatGUID != a.cfg.Roast.ChatGUID {
		return "", nil
	}

	if a.flow.Stage(m.ChatGUID) == StageProcessing {
		return replyBusy, nil
	}

	if !strings.Contains(strings.ToLower(m.Text), "linkedin.com") {
		count := a.bumpCount(m.ChatGUID)
		return a.roaster.NudgeMessage(count), nil
	}

	profileURL, ok := ExtractProfileURL(m.Text)
	if !ok {
		return a.roaster.InvalidURLMessage(), nil
	}
	return a.roastProfile(m, profileURL)
}

// roastProfile scrapes the profile and delivers the roast. The webhook
// ack has already gone out, so taking a few seconds here is fine; the
// processing stage keeps a second link from racing the first.
func (a *App) roastProfile(m *corebot.Message, profileURL string) (string, error) {
	a.flow.SetStage(m.ChatGUID, StageProcessing)
	defer func() {
		a.flow.SetStage(m.ChatGUID, StageWaitingForLinkedIn)
		a.resetCount(m.ChatGUID)
	}()

	if err := m.Reply(replyWorking); err != nil {
		return "", err
	}

	profile, err := a.scraper.Scrape(m.Context(), profileURL)
	if err != nil {
		logger.Warn(m.Context(), "roast", "scrape.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return replyBlocked, nil
	}

	roasted := a.roaster.Roast(m.Context(), profile)
	logger.Info(m.Context(), "roast", "roast.delivered",
		slog.String("status", "ok"),
		slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
	)
	return roasted, nil
}

// bumpCount tracks how many linkless messages the chat has sent so the
// nudges can escalate.
func (a *App) bumpCount(chatGUID string) int {
	count := 0
	a.flow.Advance(chatGUID, func(s *state.Session) {
		if s.Stage == state.StageIdle {
			s.Stage = StageWaitingForLinkedIn
		}
		s.QuestionCount++
		count = s.QuestionCount
	})
	return count
}

func (a *App) resetCount(chatGUID string) {
	a.flow.Advance(chatGUID, func(s *state.Session) {
		s.QuestionCount = 0
	})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"bot":     "resume-roast",
		"version": buildinfo.Version,
		"flow":    a.flow.Stats(),
		"ai":      a.roaster.Stats(),
		"config": map[string]string{
			"chat_guid": a.cfg.Roast.ChatGUID,
		},
	})
}

// Package meeting implements a scheduling bot: a "!schedule" request in
// any chat is parsed into meeting details and dropped onto Google
// Calendar with a Meet link. The first request in a chat asks for the
// requester's email so they land on the invite.
package meeting

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	"github.com/shrey150/imessage-bots/core/buildinfo"
	"github.com/shrey150/imessage-bots/core/gcal"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	"github.com/shrey150/imessage-bots/core/state"
	"log/slog"
)

// Conversation stages for one chat's scheduling flow.
const (
	StageWaitingForEmail state.Stage = "waiting_for_email"
	StageProcessing      state.Stage = "processing"
)

const pendingRequestKey = "pending_request"

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

const (
	replyUsage = "📅 Tell me what to schedule! For example:\n\n" +
		"!schedule coffee with Sam tomorrow at 3pm\n" +
		"!schedule team sync next tuesday 10am to 11am"
	replyAskEmail = "📧 First things first: what's your email address? " +
		"I'll add you to the invite. (You can change it later with \"email new@address.com\".)"
	replyBadEmail = "That doesn't look like an email address. Try something like name@example.com."
	replyBusy     = "⏳ Still working on your last meeting, give me a second..."
	replyBroken   = "😅 Something went wrong setting that up. Mind trying again?"
)

// Calendar is the slice of gcal.Service the bot needs. Tests substitute a
// stub so no Google credentials are involved.
type Calendar interface {
	CreateMeeting(ctx context.Context, m gcal.Meeting, extraAttendees []string) (*gcal.CreatedEvent, error)
	UpcomingMeetings(ctx context.Context, max int64) ([]gcal.Upcoming, error)
}

// App wires the meeting bot's parser, calendar, and per-chat flow state.
type App struct {
	cfg      *Config
	parser   *Parser
	calendar Calendar
	flow     *state.Tracker
	emails   *state.KV
	location *time.Location
}

// Bootstrap builds the app from validated configuration. Calendar auth
// happens here so a bad token fails startup, not the first request.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	ai, err := openai.New(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("meeting: %w", err)
	}
	cal, err := gcal.NewService(ctx, gcal.Options{
		CredentialsFile: cfg.Meeting.Google.CredentialsFile,
		TokenFile:       cfg.Meeting.Google.TokenFile,
		CalendarID:      cfg.Meeting.Google.CalendarID,
		TimeZone:        cfg.Meeting.Google.TimeZone,
	})
	if err != nil {
		return nil, fmt.Errorf("meeting: %w", err)
	}
	return newApp(cfg, ai, cal), nil
}

func newApp(cfg *Config, ai *openai.Client, cal Calendar) *App {
	loc, err := time.LoadLocation(cfg.Meeting.Google.TimeZone)
	if err != nil || cfg.Meeting.Google.TimeZone == "" {
		loc, _ = time.LoadLocation("America/Los_Angeles")
	}
	return &App{
		cfg:      cfg,
		parser:   NewParser(ai, cfg.Meeting.Google.TimeZone),
		calendar: cal,
		flow:     state.NewTracker(state.TrackerOptions{}),
		emails:   state.NewKV(cfg.Meeting.StatePath),
		location: loc,
	}
}

// BuildBot assembles the bot with its handlers and routes.
func (a *App) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: "meeting-scheduler", Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.Use(corebot.IgnoreOwn)

	b.OnMessage("email-update", corebot.Command("email", a.handleEmailUpdate))
	b.OnMessage(a.cfg.Meeting.Trigger, corebot.Command(a.cfg.Meeting.Trigger, a.handleSchedule))
	b.OnMessage("email-capture", a.handleEmailCapture)

	b.HandleFunc("GET /stats", a.handleStats)
	b.HandleFunc("GET /upcoming", a.handleUpcoming)
	return b, nil
}

// handleSchedule starts the flow for a "!schedule ..." request. Chats
// without a known email detour through the email-capture stage first.
func (a *App) handleSchedule(m *corebot.Message) (string, error) {
	request := strings.TrimSpace(m.Args)
	if request == "" {
		return replyUsage, nil
	}
	if a.flow.Stage(m.ChatGUID) == StageProcessing {
		return replyBusy, nil
	}

	email := a.emails.GetString(emailKey(m.ChatGUID), "")
	if email == "" {
		a.flow.SetStage(m.ChatGUID, StageWaitingForEmail)
		a.flow.SetData(m.ChatGUID, pendingRequestKey, request)
		return replyAskEmail, nil
	}
	return a.schedule(m, request, email)
}

// handleEmailCapture consumes the next message in a chat that owes us an
// email address. Everything else passes through untouched.
func (a *App) handleEmailCapture(m *corebot.Message) (string, error) {
	if a.flow.Stage(m.ChatGUID) != StageWaitingForEmail {
		return "", corebot.ErrPass
	}

	email := strings.ToLower(strings.TrimSpace(m.Text))
	if !emailPattern.MatchString(email) {
		return replyBadEmail, nil
	}
	a.emails.Set(emailKey(m.ChatGUID), email)

	pending, _ := a.flow.GetDataString(m.ChatGUID, pendingRequestKey)
	a.flow.ClearData(m.ChatGUID, pendingRequestKey)
	a.flow.ClearStage(m.ChatGUID)

	if pending == "" {
		return fmt.Sprintf("✅ Got it, you're %s. Now tell me what to schedule!", email), nil
	}
	return a.schedule(m, pending, email)
}

// handleEmailUpdate handles "email new@address.com" at any point.
func (a *App) handleEmailUpdate(m *corebot.Message) (string, error) {
	email := strings.ToLower(strings.TrimSpace(m.Args))
	if email == "" || !emailPattern.MatchString(email) {
		// Bare "email ..." chatter that isn't an address is not ours.
		return "", corebot.ErrPass
	}
	a.emails.Set(emailKey(m.ChatGUID), email)
	a.flow.ClearStage(m.ChatGUID)
	return fmt.Sprintf("✅ Updated your email to %s.", email), nil
}

// schedule parses the request, creates the event, and reports back. The
// processing stage guards against a second request racing the first.
func (a *App) schedule(m *corebot.Message, request, email string) (string, error) {
	a.flow.SetStage(m.ChatGUID, StageProcessing)
	defer a.flow.ClearStage(m.ChatGUID)

	details, err := a.parser.Parse(m.Context(), request)
	if err != nil {
		logger.Warn(m.Context(), "meeting", "parse.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return "🤔 I couldn't work out the meeting details. Try including a time, like \"!schedule lunch with Alex friday at noon\".", nil
	}
	if err := details.Validate(time.Now()); err != nil {
		return fmt.Sprintf("🚫 That won't work: %s.", trimPrefixError(err)), nil
	}

	extra := []string{email}
	if a.cfg.Meeting.OrganizerEmail != "" && !strings.EqualFold(a.cfg.Meeting.OrganizerEmail, email) {
		extra = append(extra, a.cfg.Meeting.OrganizerEmail)
	}

	created, err := a.calendar.CreateMeeting(m.Context(), details, extra)
	if err != nil {
		logger.Error(m.Context(), "meeting", "create.fail",
			slog.String("status", "error"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return replyBroken, nil
	}

	logger.Info(m.Context(), "meeting", "meeting.scheduled",
		slog.String("status", "ok"),
		slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
	)
	return a.confirmation(details, created), nil
}

// confirmation renders the scheduled meeting with local times and links.
func (a *App) confirmation(details gcal.Meeting, created *gcal.CreatedEvent) string {
	start := details.Start.In(a.location)
	end := details.End.In(a.location)

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Scheduled: %s\n", details.Title)
	fmt.Fprintf(&sb, "🕐 %s – %s\n", start.Format("Mon Jan 2, 3:04 PM"), end.Format("3:04 PM MST"))
	if details.Location != "" {
		fmt.Fprintf(&sb, "📍 %s\n", details.Location)
	}
	if created.MeetLink != "" {
		fmt.Fprintf(&sb, "\n📹 Meet: %s", created.MeetLink)
	}
	if created.HTMLLink != "" {
		fmt.Fprintf(&sb, "\n📅 Calendar: %s", created.HTMLLink)
	}
	return sb.String()
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	corebot.WriteJSON(w, http.StatusOK, map[string]any{
		"bot":           "meeting-scheduler",
		"version":       buildinfo.Version,
		"flow":          a.flow.Stats(),
		"known_emails":  len(a.emails.Keys()),
		"trigger":       a.cfg.Meeting.Trigger,
		"calendar_zone": a.location.String(),
	})
}

func (a *App) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	upcoming, err := a.calendar.UpcomingMeetings(r.Context(), 10)
	if err != nil {
		corebot.WriteJSON(w, http.StatusBadGateway, map[string]string{
			"error": logger.SanitizeLimit(err.Error(), 256),
		})
		return
	}
	corebot.WriteJSON(w, http.StatusOK, map[string]any{"meetings": upcoming})
}

func emailKey(chatGUID string) string { return "email:" + chatGUID }

// trimPrefixError drops the package prefix from validation errors so user
// replies read naturally.
func trimPrefixError(err error) string {
	return strings.TrimPrefix(err.Error(), "gcal: ")
}

package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

const (
	defaultCalendarID = "primary"
	defaultTimeZone   = "America/Los_Angeles"
)

// Meeting is a parsed meeting request ready for calendar insertion.
type Meeting struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
	Attendees   []string  `json:"attendees"`
}

// Validate rejects meetings that cannot be scheduled. The rules mirror what
// users can realistically mean over chat: no past meetings, sane duration,
// at most a year out.
func (m Meeting) Validate(now time.Time) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("meeting title is required")
	}
	if m.Start.Before(now) {
		return fmt.Errorf("meeting start time cannot be in the past")
	}
	if !m.End.After(m.Start) {
		return fmt.Errorf("meeting end time must be after start time")
	}
	if m.End.Sub(m.Start) > 8*time.Hour {
		return fmt.Errorf("meeting duration cannot exceed 8 hours")
	}
	if m.Start.After(now.AddDate(1, 0, 0)) {
		return fmt.Errorf("meeting cannot be scheduled more than 1 year in advance")
	}
	return nil
}

// CreatedEvent reports where the inserted event lives.
type CreatedEvent struct {
	EventID  string
	HTMLLink string
	MeetLink string
}

// Upcoming is one row of the upcoming-meetings listing.
type Upcoming struct {
	Title    string `json:"title"`
	Start    string `json:"start"`
	URL      string `json:"url"`
	Location string `json:"location"`
}

// Options configure calendar access. CredentialsFile is the OAuth client
// secret JSON; TokenFile holds a previously authorized user token.
type Options struct {
	CredentialsFile string
	TokenFile       string
	CalendarID      string
	TimeZone        string
}

// Service wraps the Calendar API for meeting creation.
type Service struct {
	cal        *calendar.Service
	calendarID string
	timeZone   string
}

// NewService authenticates with the stored OAuth token and builds the API
// client. Obtaining the initial token is an offline step; the bot only
// refreshes it.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	credJSON, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(credJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials: %w", err)
	}

	tokenJSON, err := os.ReadFile(opts.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("gcal: parse token: %w", err)
	}

	cal, err := calendar.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("gcal: build service: %w", err)
	}

	calendarID := opts.CalendarID
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	timeZone := opts.TimeZone
	if timeZone == "" {
		timeZone = defaultTimeZone
	}

	logger.Info(ctx, "gcal", "auth.ok",
		slog.String("status", "ok"),
	)
	return &Service{cal: cal, calendarID: calendarID, timeZone: timeZone}, nil
}

// CreateMeeting inserts the meeting with email reminders a day ahead and a
// popup ten minutes before. A Meet link is attached unless the location
// already names another conferencing tool.
func (s *Service) CreateMeeting(ctx context.Context, m Meeting, extraAttendees []string) (*CreatedEvent, error) {
	if err := m.Validate(time.Now()); err != nil {
		return nil, fmt.Errorf("gcal: %w", err)
	}

	var attendees []*calendar.EventAttendee
	for _, a := range append(append([]string{}, m.Attendees...), extraAttendees...) {
		if !strings.Contains(a, "@") {
			logger.Warn(ctx, "gcal", "attendee.skipped",
				slog.String("status", "ignored"),
				slog.String("cause", "no email address"),
			)
			continue
		}
		attendees = append(attendees, &calendar.EventAttendee{Email: a})
	}

	description := m.Description
	if description == "" {
		description = "Meeting created via iMessage bot"
	}

	event := &calendar.Event{
		Summary:     m.Title,
		Location:    m.Location,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: m.Start.Format(time.RFC3339),
			TimeZone: s.timeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: m.End.Format(time.RFC3339),
			TimeZone: s.timeZone,
		},
		Attendees: attendees,
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	conferenceVersion := int64(0)
	if wantsMeetLink(m.Location) {
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: "meet-" + uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		}
		conferenceVersion = 1
	}

	inserted, err := s.cal.Events.Insert(s.calendarID, event).
		ConferenceDataVersion(conferenceVersion).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: insert event: %w", err)
	}

	created := &CreatedEvent{
		EventID:  inserted.Id,
		HTMLLink: inserted.HtmlLink,
	}
	if inserted.ConferenceData != nil {
		for _, ep := range inserted.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				created.MeetLink = ep.Uri
				break
			}
		}
	}

	logger.Info(ctx, "gcal", "event.created",
		slog.String("status", "ok"),
		slog.Int("count", len(attendees)),
	)
	return created, nil
}

// UpcomingMeetings lists the next meetings on the calendar, soonest first.
func (s *Service) UpcomingMeetings(ctx context.Context, max int64) ([]Upcoming, error) {
	if max <= 0 {
		max = 10
	}
	res, err := s.cal.Events.List(s.calendarID).
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		MaxResults(max).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}

	out := make([]Upcoming, 0, len(res.Items))
	for _, ev := range res.Items {
		start := ""
		if ev.Start != nil {
			start = ev.Start.DateTime
			if start == "" {
				start = ev.Start.Date
			}
		}
		title := ev.Summary
		if title == "" {
			title = "No Title"
		}
		location := ev.Location
		if location == "" {
			location = "No Location"
		}
		out = append(out, Upcoming{
			Title:    title,
			Start:    start,
			URL:      ev.HtmlLink,
			Location: location,
		})
	}
	return out, nil
}

// IsFree reports whether the calendar has no busy blocks in the window.
// Lookup failures count as free so scheduling is never silently blocked.
func (s *Service) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	res, err := s.cal.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: s.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return true, fmt.Errorf("gcal: freebusy: %w", err)
	}
	cal, ok := res.Calendars[s.calendarID]
	if !ok {
		return true, nil
	}
	return len(cal.Busy) == 0, nil
}

func wantsMeetLink(location string) bool {
	if location == "" {
		return true
	}
	return !strings.Contains(strings.ToLower(location), "zoom")
}

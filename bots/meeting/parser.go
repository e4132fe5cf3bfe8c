package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/gcal"
	"github.com/shrey150/imessage-bots/core/openai"
)

const (
	parseTemperature = 0.1
	parseMaxTokens   = 300
)

const parseSystemPrompt = `You are a meeting scheduling assistant. Extract meeting details from natural language requests.

Respond with a single JSON object with these fields:
- "title": short meeting title (required)
- "description": one-line description, or ""
- "start_datetime": start time in RFC 3339 format (required)
- "end_datetime": end time in RFC 3339 format, or "" if not specified
- "location": meeting location, or ""
- "attendees": array of email addresses mentioned in the request

Resolve relative dates ("tomorrow", "next tuesday") against the current time given in the request. If no duration or end time is given, leave end_datetime empty. Never invent attendees that were not mentioned.`

// parsedMeeting is the JSON shape the model is asked to emit. Times come
// back as strings so a sloppy model reply fails with a useful message
// instead of a decode panic.
type parsedMeeting struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Start       string   `json:"start_datetime"`
	End         string   `json:"end_datetime"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees"`
}

// Parser turns free-form meeting requests into structured details using
// the model's JSON mode.
type Parser struct {
	ai       *openai.Client
	timeZone string
	now      func() time.Time
}

// NewParser builds a parser resolving relative dates in the given zone.
func NewParser(ai *openai.Client, timeZone string) *Parser {
	if timeZone == "" {
		timeZone = "America/Los_Angeles"
	}
	return &Parser{ai: ai, timeZone: timeZone, now: time.Now}
}

// Parse extracts meeting details from text. A missing end time defaults to
// one hour after the start.
func (p *Parser) Parse(ctx context.Context, text string) (gcal.Meeting, error) {
	loc, err := time.LoadLocation(p.timeZone)
	if err != nil {
		loc = time.Local
	}
	now := p.now().In(loc)

	prompt := fmt.Sprintf("Current time: %s (%s)\n\nMeeting request: %s",
		now.Format("Monday, January 2, 2006 at 3:04 PM"), p.timeZone, text)

	resp, err := p.ai.Complete(ctx, openai.Request{
		Messages: []openai.Message{
			{Role: openai.RoleSystem, Content: parseSystemPrompt},
			{Role: openai.RoleUser, Content: prompt},
		},
		Temperature:    parseTemperature,
		MaxTokens:      parseMaxTokens,
		ResponseFormat: openai.JSONObject,
	})
	if err != nil {
		return gcal.Meeting{}, fmt.Errorf("meeting: parse request: %w", err)
	}

	var parsed parsedMeeting
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return gcal.Meeting{}, fmt.Errorf("meeting: decode parsed details: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return gcal.Meeting{}, fmt.Errorf("meeting: could not find a title in the request")
	}

	start, err := parseWhen(parsed.Start, loc)
	if err != nil {
		return gcal.Meeting{}, fmt.Errorf("meeting: could not understand the start time: %w", err)
	}
	end := start.Add(time.Hour)
	if strings.TrimSpace(parsed.End) != "" {
		end, err = parseWhen(parsed.End, loc)
		if err != nil {
			return gcal.Meeting{}, fmt.Errorf("meeting: could not understand the end time: %w", err)
		}
	}

	return gcal.Meeting{
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
		Location:    strings.TrimSpace(parsed.Location),
		Start:       start,
		End:         end,
		Attendees:   parsed.Attendees,
	}, nil
}

// parseWhen accepts RFC 3339 with or without an offset; bare timestamps
// are taken in the bot's zone.
func parseWhen(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

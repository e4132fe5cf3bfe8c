package meeting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/openai"
)

// newTestParser serves a fixed model reply and records the request body
// the parser sent.
func newTestParser(t *testing.T, reply string) (*Parser, *string) {
	t.Helper()
	var lastBody string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		lastBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ai, err := openai.New(coreconfig.OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("openai.New: %v", err)
	}
	p := NewParser(ai, "America/Los_Angeles")
	p.now = func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p, &lastBody
}

func TestParseDefaultsEndToOneHour(t *testing.T) {
	p, body := newTestParser(t, `{"title":"Coffee","description":"","start_datetime":"2030-01-02T15:00:00-08:00","end_datetime":"","location":"","attendees":["sam@example.com"]}`)

	m, err := p.Parse(context.Background(), "coffee with sam tomorrow at 3pm")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Title != "Coffee" {
		t.Fatalf("title = %q", m.Title)
	}
	if got := m.End.Sub(m.Start); got != time.Hour {
		t.Fatalf("duration = %s, want 1h", got)
	}
	if len(m.Attendees) != 1 || m.Attendees[0] != "sam@example.com" {
		t.Fatalf("attendees = %v", m.Attendees)
	}
	// The prompt anchors relative dates to the bot's current time.
	if !strings.Contains(*body, "Current time:") || !strings.Contains(*body, "json_object") {
		t.Fatalf("request body missing anchors:\n%s", *body)
	}
}

func TestParseExplicitEnd(t *testing.T) {
	p, _ := newTestParser(t, `{"title":"Sync","description":"","start_datetime":"2030-01-03T10:00:00-08:00","end_datetime":"2030-01-03T11:30:00-08:00","location":"","attendees":[]}`)

	m, err := p.Parse(context.Background(), "sync friday 10 to 11:30")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := m.End.Sub(m.Start); got != 90*time.Minute {
		t.Fatalf("duration = %s, want 1h30m", got)
	}
}

func TestParseBareTimestampUsesZone(t *testing.T) {
	p, _ := newTestParser(t, `{"title":"Lunch","description":"","start_datetime":"2030-01-02T12:00:00","end_datetime":"","location":"","attendees":[]}`)

	m, err := p.Parse(context.Background(), "lunch tomorrow at noon")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	loc, _ := time.LoadLocation("America/Los_Angeles")
	want := time.Date(2030, 1, 2, 12, 0, 0, 0, loc)
	if !m.Start.Equal(want) {
		t.Fatalf("start = %s, want %s", m.Start, want)
	}
}

func TestParseRejectsMissingTitle(t *testing.T) {
	p, _ := newTestParser(t, `{"title":"","start_datetime":"2030-01-02T15:00:00-08:00"}`)

	if _, err := p.Parse(context.Background(), "something vague"); err == nil {
		t.Fatal("expected an error for a missing title")
	}
}

func TestParseRejectsGarbageTime(t *testing.T) {
	p, _ := newTestParser(t, `{"title":"Coffee","start_datetime":"whenever works"}`)

	_, err := p.Parse(context.Background(), "coffee whenever")
	if err == nil || !strings.Contains(err.Error(), "start time") {
		t.Fatalf("err = %v", err)
	}
}

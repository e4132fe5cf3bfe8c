package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/linear"
	"github.com/shrey150/imessage-bots/core/openai"
)

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		issueType string
		level     string
		want      int
	}{
		{"bug_report", "high", 1},
		{"bug_report", "medium", 2},
		{"bug_report", "low", 3},
		{"pain_point", "high", 2},
		{"pain_point", "medium", 3},
		{"feature_request", "high", 3},
		{"feature_request", "low", 4},
		{"general_feedback", "high", 3},
		{"", "", 3},
	}
	for _, tc := range cases {
		if got := priorityFor(tc.issueType, tc.level); got != tc.want {
			t.Errorf("priorityFor(%q, %q) = %d, want %d", tc.issueType, tc.level, got, tc.want)
		}
	}
}

func TestParseIssueDrafts(t *testing.T) {
	text := "Here are the issues I found:\n\n```json\n" +
		`[{"title": "Fix crash", "type": "bug_report", "priority": "high", "labels": ["bug", "crash"]}]` +
		"\n```\nLet me know if you need anything else."
	drafts, err := parseIssueDrafts(text)
	if err != nil {
		t.Fatalf("parseIssueDrafts: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Title != "Fix crash" || drafts[0].Priority != "high" {
		t.Fatalf("drafts = %+v", drafts)
	}

	drafts, err = parseIssueDrafts(`[{"title":"A"},{"title":"B"}]`)
	if err != nil {
		t.Fatalf("plain array: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(drafts))
	}

	if _, err := parseIssueDrafts("no drafts in here"); err == nil {
		t.Fatal("expected error for non-JSON response")
	} else if !strings.Contains(err.Error(), "parse triage drafts") {
		t.Fatalf("err = %v", err)
	}
}

func TestFeedbackDigest(t *testing.T) {
	at := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	items := []Feedback{{
		Type:       TypeBugReport,
		Summary:    "payment fails at checkout",
		RawMessage: "payment fails every time i hit checkout",
		At:         at,
	}}
	insights := []Insight{
		{Type: TypeBugReport, Theme: "payment_issues", Frequency: 3, AffectedChats: 2,
			Severity: severityHigh, FirstSeen: at, LastSeen: at},
		{Type: TypeFeatureRequest, Theme: "search_features", Frequency: 1, AffectedChats: 1,
			Severity: severityMedium, FirstSeen: at, LastSeen: at},
	}

	digest := feedbackDigest(items, insights)
	for _, want := range []string{
		"### Feedback #1",
		"**Type**: bug_report",
		"**Date**: 2025-07-14 09:30",
		"**Raw Message**: payment fails every time i hit checkout",
		"## Cross-Chat Insights",
		"### Payment Issues",
		"**Frequency**: Mentioned 3 times",
		"**Affected Chats**: 2 different users",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
	// Single mentions stay out of the cross-chat section.
	if strings.Contains(digest, "Search Features") {
		t.Errorf("digest should not include one-off insights:\n%s", digest)
	}

	if d := feedbackDigest(items, nil); strings.Contains(d, "Cross-Chat") {
		t.Errorf("digest without insights should skip the section:\n%s", d)
	}
}

func TestSessionFooter(t *testing.T) {
	session := SessionFeedback{
		ChatGUID:       "iMessage;+;secret-chat",
		Stage:          StageSummarizing,
		QuestionsAsked: 2,
		Items:          make([]Feedback, 2),
	}
	footer := sessionFooter(session)
	if strings.Contains(footer, "secret-chat") {
		t.Fatalf("footer leaks the chat GUID:\n%s", footer)
	}
	for _, want := range []string{
		"**Session Context:**",
		"- Chat Session: " + chatHash("iMessage;+;secret-chat") + " (anonymized)",
		"- Session State: summarizing",
		"- Total Questions Asked: 2",
		"- Feedback Items: 2",
	} {
		if !strings.Contains(footer, want) {
			t.Errorf("footer missing %q:\n%s", want, footer)
		}
	}
}

func TestThemeTitle(t *testing.T) {
	cases := map[string]string{
		"payment_issues":        "Payment Issues",
		"usability_confusion":   "Usability Confusion",
		"praise_general":        "Praise General",
		"notification_features": "Notification Features",
	}
	for theme, want := range cases {
		if got := themeTitle(theme); got != want {
			t.Errorf("themeTitle(%q) = %q, want %q", theme, got, want)
		}
	}
}

// fakeTriageServer plays OpenAI and Linear for triager tests.
type fakeTriageServer struct {
	mu         sync.Mutex
	drafts     string
	failCreate bool
	inputs     []map[string]any
	srv        *httptest.Server
}

func newFakeTriageServer(t *testing.T) *fakeTriageServer {
	t.Helper()
	f := &fakeTriageServer{
		drafts: `[{"title":"Fix ordering crash","description":"Crash when ordering food","type":"bug_report","priority":"high","labels":["bug"]},` +
			`{"title":"","description":"Nice to have","type":"feature_request","priority":"low"}]`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		drafts := f.drafts
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, drafts)
	})
	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(req.Query, "issueCreate") {
			fmt.Fprint(w, `{"data":{"teams":{"nodes":[{"id":"team-1","name":"Product","key":"ENG"}]}}}`)
			return
		}
		f.mu.Lock()
		input, _ := req.Variables["input"].(map[string]any)
		f.inputs = append(f.inputs, input)
		n := len(f.inputs)
		fail := f.failCreate
		f.mu.Unlock()
		if fail {
			fmt.Fprint(w, `{"data":{"issueCreate":{"success":false}}}`)
			return
		}
		fmt.Fprintf(w, `{"data":{"issueCreate":{"success":true,"issue":{"id":"issue-%d","identifier":"FEED-%d","title":%q,"url":"https://linear.app/t/FEED-%d"}}}}`,
			n, n, fmt.Sprint(input["title"]), n)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTriageServer) createdInputs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.inputs))
	copy(out, f.inputs)
	return out
}

func newTestTriager(t *testing.T, f *fakeTriageServer) *Triager {
	t.Helper()
	ai, err := openai.New(coreconfig.OpenAIConfig{APIKey: "test-key", BaseURL: f.srv.URL})
	if err != nil {
		t.Fatalf("openai.New: %v", err)
	}
	lc, err := linear.New(linear.Options{APIKey: "lin-key", BaseURL: f.srv.URL, TeamKey: "ENG"})
	if err != nil {
		t.Fatalf("linear.New: %v", err)
	}
	return NewTriager(ai, lc)
}

func TestTriageSessionFilesIssues(t *testing.T) {
	f := newFakeTriageServer(t)
	tr := newTestTriager(t, f)

	session := SessionFeedback{
		ChatGUID:       "iMessage;+;chat-a",
		Stage:          StageThanking,
		QuestionsAsked: 2,
		Items: []Feedback{{
			Type:       TypeBugReport,
			Summary:    "crash when ordering",
			RawMessage: "it crashed while i was ordering",
			At:         time.Now(),
		}},
	}
	issues, err := tr.TriageSession(context.Background(), session, nil)
	if err != nil {
		t.Fatalf("TriageSession: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(issues))
	}
	if issues[0].Identifier != "FEED-1" {
		t.Fatalf("identifier = %q", issues[0].Identifier)
	}

	inputs := f.createdInputs()
	if inputs[0]["teamId"] != "team-1" {
		t.Fatalf("teamId = %v", inputs[0]["teamId"])
	}
	if inputs[0]["title"] != "Fix ordering crash" {
		t.Fatalf("title = %v", inputs[0]["title"])
	}
	if inputs[0]["priority"] != float64(1) {
		t.Fatalf("priority = %v, want 1 for a high bug", inputs[0]["priority"])
	}
	desc, _ := inputs[0]["description"].(string)
	if !strings.Contains(desc, "**Session Context:**") {
		t.Fatalf("description missing session footer:\n%s", desc)
	}
	// The second draft had no title and a low-priority feature type.
	if inputs[1]["title"] != "Untitled Feedback" {
		t.Fatalf("fallback title = %v", inputs[1]["title"])
	}
	if inputs[1]["priority"] != float64(4) {
		t.Fatalf("feature priority = %v, want 4", inputs[1]["priority"])
	}
}

func TestTriageSessionEmpty(t *testing.T) {
	f := newFakeTriageServer(t)
	tr := newTestTriager(t, f)

	issues, err := tr.TriageSession(context.Background(), SessionFeedback{ChatGUID: "c"}, nil)
	if err != nil || issues != nil {
		t.Fatalf("empty session: issues=%v err=%v", issues, err)
	}
	if len(f.createdInputs()) != 0 {
		t.Fatal("no requests expected for an empty session")
	}
}

func TestTriageAllSkipsFooter(t *testing.T) {
	f := newFakeTriageServer(t)
	tr := newTestTriager(t, f)

	items := []Feedback{{Type: TypeBugReport, Summary: "s", RawMessage: "raw", At: time.Now()}}
	if _, err := tr.TriageAll(context.Background(), items, nil); err != nil {
		t.Fatalf("TriageAll: %v", err)
	}
	desc, _ := f.createdInputs()[0]["description"].(string)
	if strings.Contains(desc, "Session Context") {
		t.Fatalf("bulk triage must not carry a session footer:\n%s", desc)
	}
}

func TestTriageSessionAllCreatesFail(t *testing.T) {
	f := newFakeTriageServer(t)
	f.failCreate = true
	tr := newTestTriager(t, f)

	session := SessionFeedback{
		ChatGUID: "c",
		Items:    []Feedback{{Type: TypeBugReport, Summary: "s", RawMessage: "raw", At: time.Now()}},
	}
	if _, err := tr.TriageSession(context.Background(), session, nil); err == nil {
		t.Fatal("expected error when every create fails")
	}
}

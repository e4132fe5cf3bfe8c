package lover

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

	"github.com/google/go-cmp/cmp"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/openai"
)

// fakeAI is a chat-completions stub that records the last prompt pair.
type fakeAI struct {
	mu     sync.Mutex
	system string
	user   string
	reply  string
	fail   bool

	srv *httptest.Server
}

func newFakeAI(t *testing.T, reply string) *fakeAI {
	t.Helper()
	f := &fakeAI{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []openai.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for _, m := range req.Messages {
			switch m.Role {
			case openai.RoleSystem:
				f.system = m.Content
			case openai.RoleUser:
				f.user = m.Content
			}
		}
		fail := f.fail
		f.mu.Unlock()
		if fail {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, f.reply)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAI) prompts() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system, f.user
}

func newTestResponder(t *testing.T, f *fakeAI) *Responder {
	t.Helper()
	ai, err := openai.New(coreconfig.OpenAIConfig{APIKey: "test-key", BaseURL: f.srv.URL})
	if err != nil {
		t.Fatalf("openai.New: %v", err)
	}
	r := NewResponder(ai, "Luna", "Sam")
	r.now = func() time.Time { return time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC) }
	r.randIntN = func(int) int { return 0 }
	return r
}

func TestTimeContext(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{5, "morning"}, {11, "morning"},
		{12, "afternoon"}, {16, "afternoon"},
		{17, "evening"}, {20, "evening"},
		{21, "night"}, {23, "night"}, {0, "night"}, {4, "night"},
	}
	for _, tc := range cases {
		if got := timeContext(tc.hour); got != tc.want {
			t.Errorf("timeContext(%d) = %q, want %q", tc.hour, got, tc.want)
		}
	}
}

func TestTidyReply(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"missing u rn"`, "missing u rn"},
		{"omg 😭 love u 🎉", "omg 😭 love u"},
		{"ur my fav 💀", "ur my fav 💀"},
		{"  café date?  ", "café date?"},
		{"no cap✨✨", "no cap"},
	}
	for _, tc := range cases {
		if got := tidyReply(tc.in); got != tc.want {
			t.Errorf("tidyReply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFallbacksByStageAndTime(t *testing.T) {
	r := NewResponder(nil, "Luna", "Sam")

	cases := []struct {
		timeCtx string
		stage   Stage
		want    string
	}{
		{"morning", StageComforting, "hey sam idk what ur going through rn but like... i'm here ok? we'll figure out ts together"},
		{"night", StageCelebrating, "no cap sam ur literally amazing and i'm lowkey tearing up rn"},
		{"evening", StageQuestion, "hmm good question sam... my brain is buffering but what do u think? let's figure it out"},
		{"morning", StageMissingYou, "missing u is actually so rude bc now i can't focus on anything else sam"},
		{"morning", StagePlanning, "ok but like sam planning stuff w u is my fav bc we're both chaotic but somehow it works"},
		{"morning", StageCasualChat, "morning sam! my brain is approximately 12% functional rn but thinking of u"},
		{"afternoon", StageCasualChat, "just remembered u exist and now i'm smiling like an idiot sam"},
		{"evening", StageCasualChat, "how was ur day sam? mine was chaotic but wanna hear abt urs"},
		{"night", StageCasualChat, "bedtime thoughts: why r u not here to be my personal heater sam"},
	}
	for _, tc := range cases {
		if got := r.fallback(tc.timeCtx, tc.stage); got != tc.want {
			t.Errorf("fallback(%q, %s) = %q, want %q", tc.timeCtx, tc.stage, got, tc.want)
		}
	}
}

func TestRespondToBuildsPersonaPrompt(t *testing.T) {
	f := newFakeAI(t, "aw babe that sucks, come here")
	r := newTestResponder(t, f)

	tc := TurnContext{
		Stage:         StageComforting,
		Mood:          "sad",
		Recent:        []RecentTurn{{Role: "user", Content: "today sucked", Sentiment: "negative"}},
		Awaiting:      true,
		SinceLastUser: 95 * time.Minute,
	}
	reply := r.RespondTo(context.Background(), "today sucked", tc)
	if reply != "aw babe that sucks, come here" {
		t.Fatalf("reply = %q", reply)
	}

	system, user := f.prompts()
	for _, want := range []string{
		"You are Luna, a 20-year-old girlfriend to Sam.",
		"Current time context: morning",
		"Message type to focus on: responsive comforting, supportive message to help them feel better",
		"Current conversation state: comforting",
		"User seems to be feeling: sad",
		"  Sam: today sucked... (negative)",
		"It's been 1.6 hours since their last message",
		"Sam is expecting a response to their recent message",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	wantUser := "Sam just sent you: 'today sucked'\n\nRespond naturally as their loving partner, taking into account the conversation context above."
	if user != wantUser {
		t.Errorf("user prompt = %q, want %q", user, wantUser)
	}

	if st := r.Stats(); st.Requests != 1 || st.Fallbacks != 0 {
		t.Errorf("Stats() = %+v, want 1 request and no fallbacks", st)
	}
}

func TestRespondToFallsBackOnAIError(t *testing.T) {
	f := newFakeAI(t, "")
	f.fail = true
	r := newTestResponder(t, f)

	reply := r.RespondTo(context.Background(), "today sucked", TurnContext{Stage: StageComforting})
	want := "hey sam idk what ur going through rn but like... i'm here ok? we'll figure out ts together"
	if reply != want {
		t.Errorf("reply = %q, want comforting fallback", reply)
	}
	if st := r.Stats(); st.Requests != 1 || st.Fallbacks != 1 {
		t.Errorf("Stats() = %+v, want 1 request and 1 fallback", st)
	}
}

func TestProactivePicksTimeAngle(t *testing.T) {
	f := newFakeAI(t, "goodnight, dream of me obviously")
	r := newTestResponder(t, f)
	r.now = func() time.Time { return time.Date(2025, 7, 14, 22, 0, 0, 0, time.UTC) }
	r.randIntN = func(int) int { return 1 }

	reply := r.Proactive(context.Background(), TurnContext{New: true, Stage: StageCasualChat})
	if reply != "goodnight, dream of me obviously" {
		t.Fatalf("reply = %q", reply)
	}

	system, user := f.prompts()
	if !strings.Contains(system, "Message type to focus on: sweet dreams with a casual, loving conversation tone") {
		t.Errorf("system prompt missing proactive message type, got:\n%s", system)
	}
	if !strings.Contains(system, "This is the start of your conversation.") {
		t.Error("system prompt missing new-conversation context")
	}
	if !strings.HasPrefix(user, "Send a loving sweet dreams with a casual, loving conversation tone to Sam.") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestContextStringRendering(t *testing.T) {
	r := NewResponder(nil, "Luna", "Sam")

	if got := r.contextString(TurnContext{New: true}); got != "This is the start of your conversation." {
		t.Errorf("new conversation context = %q", got)
	}

	tc := TurnContext{
		Stage: StagePlanning,
		Mood:  "happy",
		Recent: []RecentTurn{
			{Role: "user", Content: "dropped from the window"},
			{Role: "user", Content: "trip?", Sentiment: "question"},
			{Role: "assistant", Content: "yes pls"},
			{Role: "user", Content: "vacation planning time", Sentiment: "planning"},
		},
		Awaiting:      true,
		SinceLastUser: 30 * time.Minute,
	}
	want := strings.Join([]string{
		"Current conversation state: planning_together",
		"User seems to be feeling: happy",
		"Recent conversation:",
		"  Sam: trip?... (question)",
		"  Luna: yes pls...",
		"  Sam: vacation planning time... (planning)",
		"It's been 30 minutes since their last message",
		"Sam is expecting a response to their recent message",
	}, "\n")
	if diff := cmp.Diff(want, r.contextString(tc)); diff != "" {
		t.Errorf("context string mismatch (-want +got):\n%s", diff)
	}

	long := strings.Repeat("y", 90)
	tc = TurnContext{
		Stage:         StageCasualChat,
		Recent:        []RecentTurn{{Role: "user", Content: long, Sentiment: "neutral"}},
		SinceLastUser: 4 * time.Minute,
	}
	got := r.contextString(tc)
	if !strings.Contains(got, "  Sam: "+strings.Repeat("y", 80)+"... (neutral)") {
		t.Errorf("long content not truncated to 80 runes:\n%s", got)
	}
	if strings.Contains(got, "since their last message") {
		t.Error("timing line should be skipped under five minutes")
	}
}

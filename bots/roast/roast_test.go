package roast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
	corebot "github.com/shrey150/imessage-bots/core/bot"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

const testChat = "iMessage;+;roast-chat"

// fakeBackend plays the relay, the model, and LinkedIn for one test.
type fakeBackend struct {
	mu       sync.Mutex
	sends    []string
	aiText   string
	pageHTML string
	srv      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		aiText:   "Software Engineer at a startup? Groundbreaking. Never seen that before.",
		pageHTML: profileHTML,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/message/text", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sends = append(f.sends, body.Message)
		f.mu.Unlock()
		fmt.Fprint(w, `{"status":200}`)
	})
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		text := f.aiText
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, text)
	})
	mux.HandleFunc("GET /in/{slug}", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		html := f.pageHTML
		f.mu.Unlock()
		if html == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, html)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

func newTestApp(t *testing.T, f *fakeBackend) (*App, *corebot.Bot) {
	t.Helper()
	cfg := &Config{
		Core: coreconfig.Core{
			BlueBubbles: coreconfig.BlueBubblesConfig{ServerURL: f.srv.URL, Password: "secret"},
			OpenAI:      coreconfig.OpenAIConfig{APIKey: "test-key", BaseURL: f.srv.URL},
		},
		Roast: Settings{ChatGUID: testChat, ScrapeTimeoutSeconds: 5},
	}
	app, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	app.scraper.baseURL = f.srv.URL
	app.roaster.randIntN = func(int) int { return 0 }

	b, err := app.BuildBot()
	if err != nil {
		t.Fatalf("BuildBot: %v", err)
	}
	return app, b
}

var guidSeq int

func post(t *testing.T, b *corebot.Bot, chatGUID, text string) {
	t.Helper()
	guidSeq++
	data := bluebubbles.Message{
		GUID:        fmt.Sprintf("roast-test-%d", guidSeq),
		Text:        text,
		DateCreated: time.Now().UnixMilli(),
		Handle:      &bluebubbles.Handle{Address: "+15557654321"},
		Chats:       []bluebubbles.ChatRef{{GUID: chatGUID}},
	}
	body, _ := json.Marshal(bluebubbles.Webhook{Type: bluebubbles.EventNewMessage, Data: data})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("webhook status = %d: %s", rec.Code, rec.Body.String())
	}
}

func waitForSends(t *testing.T, f *fakeBackend, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.sent(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends, got %v", n, f.sent())
	return nil
}

func TestNudgesEscalate(t *testing.T) {
	f := newFakeBackend(t)
	_, b := newTestApp(t, f)

	post(t, b, testChat, "hey")
	waitForSends(t, f, 1)
	post(t, b, testChat, "what is this")
	sends := waitForSends(t, f, 2)
	if !strings.Contains(sends[0], "Ready to get your career roasted") {
		t.Fatalf("first nudge = %q", sends[0])
	}
	if !strings.Contains(sends[1], "Still waiting") {
		t.Fatalf("second nudge = %q", sends[1])
	}
}

func TestInvalidLinkedInURL(t *testing.T) {
	f := newFakeBackend(t)
	_, b := newTestApp(t, f)

	post(t, b, testChat, "https://linkedin.com/company/acme")

	sends := waitForSends(t, f, 1)
	if sends[0] != invalidURLMessages[0] {
		t.Fatalf("reply = %q", sends[0])
	}
}

func TestRoastDelivery(t *testing.T) {
	f := newFakeBackend(t)
	app, b := newTestApp(t, f)

	post(t, b, testChat, "roast me https://linkedin.com/in/shrey-gupta")

	sends := waitForSends(t, f, 2)
	if sends[0] != replyWorking {
		t.Fatalf("ack = %q", sends[0])
	}
	if sends[1] != "Software Engineer at a startup? Groundbreaking. Never seen that before." {
		t.Fatalf("roast = %q", sends[1])
	}
	// Ready for the next victim.
	if got := app.flow.Stage(testChat); got != StageWaitingForLinkedIn {
		t.Fatalf("stage = %s, want %s", got, StageWaitingForLinkedIn)
	}
}

func TestScrapeFailureStillReplies(t *testing.T) {
	f := newFakeBackend(t)
	_, b := newTestApp(t, f)
	f.mu.Lock()
	f.pageHTML = ""
	f.mu.Unlock()

	post(t, b, testChat, "https://www.linkedin.com/in/private-person")

	sends := waitForSends(t, f, 2)
	if sends[1] != replyBlocked {
		t.Fatalf("reply = %q", sends[1])
	}
}

func TestOtherChatDropped(t *testing.T) {
	f := newFakeBackend(t)
	_, b := newTestApp(t, f)

	post(t, b, "iMessage;+;stranger", "https://linkedin.com/in/shrey-gupta")

	time.Sleep(200 * time.Millisecond)
	if got := f.sent(); len(got) != 0 {
		t.Fatalf("other chat must be dropped, got %v", got)
	}
}

func TestStatsRoute(t *testing.T) {
	f := newFakeBackend(t)
	_, b := newTestApp(t, f)

	post(t, b, testChat, "roast me https://linkedin.com/in/shrey-gupta")
	waitForSends(t, f, 2)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		AI Stats `json:"ai"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.AI.Requests != 1 {
		t.Fatalf("ai requests = %d, want 1", payload.AI.Requests)
	}
}

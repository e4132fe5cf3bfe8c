package recap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
	corebot "github.com/shrey150/imessage-bots/core/bot"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
	corestore "github.com/shrey150/imessage-bots/core/store"
)

const testChat = "iMessage;+;recap-chat"

// fakeServer plays both the relay and the OpenAI API for one test.
type fakeServer struct {
	mu      sync.Mutex
	sends   []string
	history []bluebubbles.Message
	summary string
	srv     *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{summary: "Plans were made for dinner on Friday."}
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
	mux.HandleFunc("GET /api/v1/chat/{guid}/message", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		hist := f.history
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": hist})
	})
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		summary := f.summary
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, summary)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

func (f *fakeServer) setHistory(msgs []bluebubbles.Message) {
	f.mu.Lock()
	f.history = msgs
	f.mu.Unlock()
}

func newTestApp(t *testing.T, f *fakeServer) (*App, *corebot.Bot) {
	t.Helper()
	cfg := &Config{
		Core: coreconfig.Core{
			BlueBubbles: coreconfig.BlueBubblesConfig{ServerURL: f.srv.URL, Password: "secret"},
			OpenAI:      coreconfig.OpenAIConfig{APIKey: "test-key", BaseURL: f.srv.URL},
		},
		Recap: Settings{
			Trigger:          "!recap",
			DefaultCount:     50,
			MaxCount:         500,
			FetchBuffer:      20,
			MaxSummaryTokens: 500,
		},
		Store: corestore.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "chat_states.json")},
	}
	backend, err := corestore.Open(cfg.Store)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	app, err := Bootstrap(cfg, backend)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	b, err := app.BuildBot()
	if err != nil {
		t.Fatalf("BuildBot: %v", err)
	}
	return app, b
}

var guidSeq int

func post(t *testing.T, b *corebot.Bot, text string, fromMe bool) {
	t.Helper()
	guidSeq++
	data := bluebubbles.Message{
		GUID:        fmt.Sprintf("recap-test-%d", guidSeq),
		Text:        text,
		IsFromMe:    fromMe,
		DateCreated: time.Now().UnixMilli(),
		Chats:       []bluebubbles.ChatRef{{GUID: testChat}},
	}
	if !fromMe {
		data.Handle = &bluebubbles.Handle{Address: "+15557654321"}
	}
	body, _ := json.Marshal(bluebubbles.Webhook{Type: bluebubbles.EventNewMessage, Data: data})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("webhook status = %d: %s", rec.Code, rec.Body.String())
	}
}

func waitForSends(t *testing.T, f *fakeServer, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.sent(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends, got %v", n, f.sent())
	return nil
}

func historyMessage(guid, text, sender string, fromMe bool, at time.Time) bluebubbles.Message {
	msg := bluebubbles.Message{
		GUID:        guid,
		Text:        text,
		IsFromMe:    fromMe,
		DateCreated: at.UnixMilli(),
	}
	if !fromMe {
		msg.Handle = &bluebubbles.Handle{Address: sender}
	}
	return msg
}

func TestRecapFlow(t *testing.T) {
	f := newFakeServer(t)
	_, b := newTestApp(t, f)

	now := time.Now()
	f.setHistory([]bluebubbles.Message{
		historyMessage("h3", "see you friday", "+15550000001", false, now),
		historyMessage("h2", "sounds good", "", true, now.Add(-time.Minute)),
		historyMessage("h1", "dinner friday?", "+15550000001", false, now.Add(-2*time.Minute)),
	})

	post(t, b, "!recap 10", true)

	sends := waitForSends(t, f, 2)
	if sends[0] != "📊 Analyzing the last 10 messages... This may take a moment." {
		t.Fatalf("ack = %q", sends[0])
	}
	if !strings.HasPrefix(sends[1], "📋 Recap of 2 messages (+15550000001)") {
		t.Fatalf("recap header wrong: %q", sends[1])
	}
	if !strings.HasSuffix(sends[1], "Plans were made for dinner on Friday.") {
		t.Fatalf("recap missing summary: %q", sends[1])
	}
}

func TestRecapIgnoredFromOthers(t *testing.T) {
	f := newFakeServer(t)
	_, b := newTestApp(t, f)

	post(t, b, "!recap", false)

	time.Sleep(200 * time.Millisecond)
	if got := f.sent(); len(got) != 0 {
		t.Fatalf("recap from another sender must not reply, got %v", got)
	}
}

func TestRecapNoMessages(t *testing.T) {
	f := newFakeServer(t)
	_, b := newTestApp(t, f)
	f.setHistory(nil)

	post(t, b, "!recap", true)

	sends := waitForSends(t, f, 2)
	if sends[1] != replyNoMessages {
		t.Fatalf("reply = %q, want no-messages line", sends[1])
	}
}

func TestRecapAllFromOwner(t *testing.T) {
	f := newFakeServer(t)
	_, b := newTestApp(t, f)

	now := time.Now()
	f.setHistory([]bluebubbles.Message{
		historyMessage("h1", "me again", "", true, now),
		historyMessage("h2", "just me", "", true, now.Add(-time.Minute)),
	})

	post(t, b, "!recap", true)

	sends := waitForSends(t, f, 2)
	if sends[1] != replyAllFromYou {
		t.Fatalf("reply = %q, want all-from-you line", sends[1])
	}
}

func TestTrackAndMarkRead(t *testing.T) {
	f := newFakeServer(t)
	app, b := newTestApp(t, f)

	post(t, b, "hello", false)
	post(t, b, "anyone here?", false)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := app.store.ChatState(context.Background(), testChat)
		if err == nil && st.UnreadCount == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("unread never reached 2: state=%+v err=%v", st, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodPost, "/mark-read/"+testChat, nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark-read status = %d: %s", rec.Code, rec.Body.String())
	}

	st, err := app.store.ChatState(context.Background(), testChat)
	if err != nil {
		t.Fatalf("ChatState: %v", err)
	}
	if st.UnreadCount != 0 || st.TotalMessagesSeen != 2 {
		t.Fatalf("after mark-read: %+v", st)
	}
	if !strings.HasPrefix(st.LastReadGUID, "manual-") {
		t.Fatalf("read marker = %q", st.LastReadGUID)
	}
}

func TestStatsRoute(t *testing.T) {
	f := newFakeServer(t)
	_, b := newTestApp(t, f)

	post(t, b, "unread one", false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		rec := httptest.NewRecorder()
		b.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("stats status = %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), `"total_unread_messages":1`) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stats never reflected the tracked message")
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		args string
		want int
	}{
		{"", 50},
		{"25", 25},
		{"0", 1},
		{"9999", 500},
		{"soon", 50},
		{"30 extra words", 30},
	}
	for _, tc := range cases {
		if got := parseCount(tc.args, 50, 500); got != tc.want {
			t.Errorf("parseCount(%q) = %d, want %d", tc.args, got, tc.want)
		}
	}
}

func TestTimeRange(t *testing.T) {
	day := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	sameDay := []entry{
		{At: day},
		{At: day.Add(2 * time.Hour)},
	}
	if got := timeRange(sameDay); got != "March 14 from 09:30AM to 11:30AM" {
		t.Fatalf("same-day range = %q", got)
	}

	crossDay := []entry{
		{At: day},
		{At: day.Add(26 * time.Hour)},
	}
	if got := timeRange(crossDay); got != "March 14 09:30AM to March 15 11:30AM" {
		t.Fatalf("cross-day range = %q", got)
	}

	if got := timeRange(nil); got != "" {
		t.Fatalf("empty range = %q", got)
	}
}

func TestExtractKeyPoints(t *testing.T) {
	bulleted := "- first point\n- second point\nplain line"
	if got := extractKeyPoints(bulleted); len(got) != 2 || got[0] != "first point" {
		t.Fatalf("bulleted points = %v", got)
	}

	prose := "They planned dinner. Alice brings dessert. Nobody invited Bob."
	got := extractKeyPoints(prose)
	if len(got) != 3 || got[0] != "They planned dinner" {
		t.Fatalf("prose points = %v", got)
	}
}

package bot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

type sentText struct {
	ChatGUID string
	Text     string
}

// fakeRelay stands in for a BlueBubbles server and records outbound sends.
type fakeRelay struct {
	mu    sync.Mutex
	sends []sentText
	srv   *httptest.Server
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/message/text", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChatGUID string `json:"chatGuid"`
			Message  string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sends = append(f.sends, sentText{ChatGUID: body.ChatGUID, Text: body.Message})
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":200,"message":"Success"}`)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentText, len(f.sends))
	copy(out, f.sends)
	return out
}

func newTestBot(t *testing.T, f *fakeRelay) *Bot {
	t.Helper()
	cfg := &coreconfig.Core{
		BlueBubbles: coreconfig.BlueBubblesConfig{ServerURL: f.srv.URL, Password: "secret"},
		HTTP:        coreconfig.HTTPConfig{Host: "127.0.0.1", Port: 0},
	}
	b, err := New(Options{Name: "test-bot", Config: cfg, MaxReplyParts: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.dispatcher.Close)
	return b
}

func postWebhook(t *testing.T, b *Bot, event bluebubbles.Webhook) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	return rec
}

func incomingMessage(guid, chatGUID, text string) bluebubbles.Webhook {
	return bluebubbles.Webhook{
		Type: bluebubbles.EventNewMessage,
		Data: bluebubbles.Message{
			GUID:        guid,
			Text:        text,
			DateCreated: time.Now().UnixMilli(),
			Handle:      &bluebubbles.Handle{Address: "+15551234567"},
			Chats:       []bluebubbles.ChatRef{{GUID: chatGUID}},
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthRoute(t *testing.T) {
	b := newTestBot(t, newFakeRelay(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if got.Status != "healthy" || got.BotName != "test-bot" || got.Version == "" {
		t.Fatalf("unexpected health payload: %+v", got)
	}
}

func TestWebhookAcceptedAndReplies(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)
	b.OnMessage("!ping", Command("!ping", func(m *Message) (string, error) {
		return "pong", nil
	}))

	rec := postWebhook(t, b, incomingMessage("msg-ping-1", "iMessage;+;chat1", "!ping"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "accepted" {
		t.Fatalf("response status = %q, want accepted", resp.Status)
	}

	waitFor(t, 2*time.Second, "reply to arrive", func() bool {
		return len(relay.sent()) == 1
	})
	got := relay.sent()[0]
	if got.Text != "pong" || got.ChatGUID != "iMessage;+;chat1" {
		t.Fatalf("unexpected send: %+v", got)
	}
}

func TestWebhookIgnores(t *testing.T) {
	b := newTestBot(t, newFakeRelay(t))

	cases := []struct {
		name   string
		event  bluebubbles.Webhook
		reason string
	}{
		{
			name: "non message event",
			event: bluebubbles.Webhook{
				Type: bluebubbles.EventUpdatedMessage,
				Data: bluebubbles.Message{GUID: "m1", Text: "edited"},
			},
			reason: "not a message",
		},
		{
			name:   "no text",
			event:  incomingMessage("m2", "iMessage;+;chat1", "   "),
			reason: "no text content",
		},
		{
			name: "no chat guid",
			event: bluebubbles.Webhook{
				Type: bluebubbles.EventNewMessage,
				Data: bluebubbles.Message{GUID: "m3", Text: "hello"},
			},
			reason: "no chat guid",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(t, b, tc.event)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var resp webhookResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "ignored" || resp.Reason != tc.reason {
				t.Fatalf("got %+v, want ignored/%s", resp, tc.reason)
			}
		})
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	b := newTestBot(t, newFakeRelay(t))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerChainFirstReplyWins(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)

	var thirdRan atomic.Bool
	b.OnMessage("passer", func(m *Message) (string, error) {
		return "", ErrPass
	})
	b.OnMessage("winner", func(m *Message) (string, error) {
		return "from-two", nil
	})
	b.OnMessage("never", func(m *Message) (string, error) {
		thirdRan.Store(true)
		return "from-three", nil
	})

	postWebhook(t, b, incomingMessage("msg-chain-1", "iMessage;+;chat2", "anything"))

	waitFor(t, 2*time.Second, "chain reply", func() bool {
		return len(relay.sent()) == 1
	})
	if got := relay.sent()[0].Text; got != "from-two" {
		t.Fatalf("reply = %q, want from-two", got)
	}
	if thirdRan.Load() {
		t.Fatal("handler after the winning one must not run")
	}
}

func TestHandlerChainContinuesPastErrors(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)

	b.OnMessage("broken", func(m *Message) (string, error) {
		return "", fmt.Errorf("upstream blew up")
	})
	b.OnMessage("fallback", func(m *Message) (string, error) {
		return "still here", nil
	})

	postWebhook(t, b, incomingMessage("msg-err-1", "iMessage;+;chat3", "anything"))

	waitFor(t, 2*time.Second, "fallback reply", func() bool {
		return len(relay.sent()) == 1
	})
	if got := relay.sent()[0].Text; got != "still here" {
		t.Fatalf("reply = %q, want still here", got)
	}
}

func TestMultiPartReplyOrder(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)

	b.OnMessage("long", func(m *Message) (string, error) {
		return "part one\n\npart two", nil
	})

	postWebhook(t, b, incomingMessage("msg-parts-1", "iMessage;+;chat4", "anything"))

	waitFor(t, 3*time.Second, "both parts", func() bool {
		return len(relay.sent()) == 2
	})
	sends := relay.sent()
	if sends[0].Text != "part one" || sends[1].Text != "part two" {
		t.Fatalf("parts out of order: %+v", sends)
	}
}

func TestIgnoreOwnDropsOwnMessages(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)
	b.Use(IgnoreOwn)

	var ran atomic.Bool
	b.OnMessage("any", func(m *Message) (string, error) {
		ran.Store(true)
		return "reply", nil
	})

	event := incomingMessage("msg-own-1", "iMessage;+;chat5", "hello")
	event.Data.IsFromMe = true
	event.Data.Handle = nil
	postWebhook(t, b, event)

	time.Sleep(200 * time.Millisecond)
	if ran.Load() {
		t.Fatal("handler ran for an own message")
	}
	if len(relay.sent()) != 0 {
		t.Fatalf("unexpected sends: %+v", relay.sent())
	}
}

func TestDuplicateWebhookProcessedOnce(t *testing.T) {
	relay := newFakeRelay(t)
	b := newTestBot(t, relay)

	b.OnMessage("any", func(m *Message) (string, error) {
		return "once", nil
	})

	event := incomingMessage("msg-dup-1", "iMessage;+;chat6", "hello")
	postWebhook(t, b, event)
	postWebhook(t, b, event)

	waitFor(t, 2*time.Second, "first reply", func() bool {
		return len(relay.sent()) >= 1
	})
	time.Sleep(200 * time.Millisecond)
	if got := len(relay.sent()); got != 1 {
		t.Fatalf("sends = %d, want 1 after duplicate delivery", got)
	}
}

func TestBotHTTPRouteRegistration(t *testing.T) {
	b := newTestBot(t, newFakeRelay(t))
	b.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]int{"total_chats": 3})
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_chats":3`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

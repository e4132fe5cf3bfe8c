package bluebubbles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{ServerURL: srv.URL, Password: "hunter2"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestSendText(t *testing.T) {
	var got sendTextRequest
	var gotPassword, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPassword = r.URL.Query().Get("password")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.SendText(context.Background(), "iMessage;-;+15551234567", "hello there"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotPath != "/api/v1/message/text" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPassword != "hunter2" {
		t.Errorf("password = %q", gotPassword)
	}
	if got.ChatGUID != "iMessage;-;+15551234567" {
		t.Errorf("chatGuid = %q", got.ChatGUID)
	}
	if got.Message != "hello there" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Method != "apple-script" {
		t.Errorf("method = %q", got.Method)
	}
	if len(got.TempGUID) != 36 {
		t.Errorf("tempGuid = %q, want a UUID", got.TempGUID)
	}
}

func TestSendTextUniqueTempGUIDs(t *testing.T) {
	seen := make(map[string]bool)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendTextRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if seen[req.TempGUID] {
			t.Errorf("tempGuid %q reused", req.TempGUID)
		}
		seen[req.TempGUID] = true
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		if err := c.SendText(context.Background(), "chat", "msg"); err != nil {
			t.Fatalf("SendText: %v", err)
		}
	}
}

func TestSendTextStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay exploded", http.StatusBadGateway)
	}))
	err := c.SendText(context.Background(), "chat", "msg")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if se.Status != http.StatusBadGateway {
		t.Errorf("status = %d", se.Status)
	}
	if se.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d", se.HTTPStatus())
	}
}

func TestChatMessages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "70" {
			t.Errorf("limit = %q", q.Get("limit"))
		}
		if q.Get("sort") != "DESC" {
			t.Errorf("sort = %q", q.Get("sort"))
		}
		if q.Get("after") != "1700000000000" {
			t.Errorf("after = %q", q.Get("after"))
		}
		_ = json.NewEncoder(w).Encode(messagesEnvelope{Data: []Message{
			{GUID: "m2", Text: "later", DateCreated: 1700000002000},
			{GUID: "m1", Text: "earlier", IsFromMe: true, DateCreated: 1700000001000},
		}})
	}))

	msgs, err := c.ChatMessages(context.Background(), "iMessage;-;+15551234567", MessagesQuery{
		Limit: 70,
		After: 1700000000000,
	})
	if err != nil {
		t.Fatalf("ChatMessages: %v", err)
	}
	want := []Message{
		{GUID: "m2", Text: "later", DateCreated: 1700000002000},
		{GUID: "m1", Text: "earlier", IsFromMe: true, DateCreated: 1700000001000},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestParticipants(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatEnvelope{Data: chatDetails{Participants: []Participant{
			{Address: "+15551234567"},
			{Address: ""},
			{Address: "friend@example.com"},
		}}})
	}))

	addrs, err := c.Participants(context.Background(), "iMessage;-;+15551234567")
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	want := []string{"+15551234567", "friend@example.com"}
	if diff := cmp.Diff(want, addrs); diff != "" {
		t.Errorf("participants mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchErrorRedactsPassword(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Options{ServerURL: srv.URL, Password: "SUPERSECRET"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = c.ChatMessages(ctx, "iMessage;-;+15551234567", MessagesQuery{Limit: 5})
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if strings.Contains(err.Error(), "SUPERSECRET") {
		t.Fatalf("password leaked in error: %v", err)
	}
	if !strings.Contains(err.Error(), "password=<redacted>") {
		t.Errorf("expected redacted URL in error, got %v", err)
	}
}

func TestPingErrorRedactsPassword(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Options{ServerURL: srv.URL, Password: "SUPERSECRET"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected error from closed server")
	} else if strings.Contains(err.Error(), "SUPERSECRET") {
		t.Fatalf("password leaked in error: %v", err)
	}
}

func TestWebhookHelpers(t *testing.T) {
	payload := []byte(`{
		"type": "new-message",
		"data": {
			"guid": "mg-1",
			"text": "@gork what",
			"isFromMe": false,
			"dateCreated": 1700000000000,
			"handle": {"address": "+15557654321"},
			"chats": [{"guid": "iMessage;-;+15551234567"}]
		}
	}`)
	var wh Webhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !wh.IsMessageEvent() {
		t.Error("expected message event")
	}
	if got := wh.Data.ChatGUID(); got != "iMessage;-;+15551234567" {
		t.Errorf("ChatGUID = %q", got)
	}
	if got := wh.Data.SenderAddress(); got != "+15557654321" {
		t.Errorf("SenderAddress = %q", got)
	}
	if wh.Data.Time().UnixMilli() != 1700000000000 {
		t.Errorf("Time = %v", wh.Data.Time())
	}

	wh.Type = EventUpdatedMessage
	if wh.IsMessageEvent() {
		t.Error("updated-message should not be a message event")
	}
	wh.Data.IsFromMe = true
	if got := wh.Data.SenderAddress(); got != "Me" {
		t.Errorf("SenderAddress for own message = %q", got)
	}
}

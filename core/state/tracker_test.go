package state

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTrackerStageLifecycle(t *testing.T) {
	tr := NewTracker(TrackerOptions{})
	const chat = "iMessage;-;+15551234567"

	if got := tr.Stage(chat); got != StageIdle {
		t.Errorf("Stage of unknown chat = %q, want idle", got)
	}
	if tr.InProgress(chat) {
		t.Error("unknown chat should not be in progress")
	}

	tr.SetStage(chat, "collecting_feedback")
	if got := tr.Stage(chat); got != "collecting_feedback" {
		t.Errorf("Stage = %q", got)
	}
	if !tr.InProgress(chat) {
		t.Error("chat should be in progress")
	}

	tr.ClearStage(chat)
	if got := tr.Stage(chat); got != StageIdle {
		t.Errorf("Stage after clear = %q", got)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}

	tr.Clear(chat)
	if tr.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", tr.Len())
	}
}

func TestTrackerHistoryWindow(t *testing.T) {
	tr := NewTracker(TrackerOptions{MaxHistory: 3, TTL: time.Hour})
	const chat = "chat-1"

	for i, text := range []string{"one", "two", "three", "four", "five"} {
		tr.AppendHistory(chat, Entry{
			GUID:   string(rune('a' + i)),
			Sender: "+15550001111",
			Text:   text,
		})
	}

	got := tr.Recent(chat, 10)
	texts := make([]string, len(got))
	for i, e := range got {
		texts[i] = e.Text
	}
	want := []string{"three", "four", "five"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	if sess := tr.Get(chat); sess.MessageCount != 5 {
		t.Errorf("MessageCount = %d, want 5", sess.MessageCount)
	}
}

func TestTrackerHistoryTTL(t *testing.T) {
	tr := NewTracker(TrackerOptions{MaxHistory: 10, TTL: time.Hour})
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }
	const chat = "chat-1"

	tr.AppendHistory(chat, Entry{Text: "stale", At: clock.Add(-2 * time.Hour)})
	tr.AppendHistory(chat, Entry{Text: "fresh", At: clock.Add(-time.Minute)})

	got := tr.Recent(chat, 10)
	if len(got) != 1 || got[0].Text != "fresh" {
		t.Errorf("Recent = %+v, want only the fresh entry", got)
	}

	if _, ok := tr.Previous(chat); ok {
		t.Error("Previous should have nothing once the stale entry expired")
	}

	tr.AppendHistory(chat, Entry{Text: "newer", At: clock})
	prev, ok := tr.Previous(chat)
	if !ok || prev.Text != "fresh" {
		t.Errorf("Previous = %+v ok=%v, want the fresh entry", prev, ok)
	}
}

func TestTrackerAdvance(t *testing.T) {
	tr := NewTracker(TrackerOptions{})
	const chat = "chat-1"

	tr.Advance(chat, func(s *Session) {
		s.Stage = "probing_deeper"
		s.QuestionCount++
		s.Data["feedback_type"] = "bug_report"
	})

	sess := tr.Get(chat)
	if sess.Stage != "probing_deeper" {
		t.Errorf("Stage = %q", sess.Stage)
	}
	if sess.QuestionCount != 1 {
		t.Errorf("QuestionCount = %d", sess.QuestionCount)
	}
	if v, _ := tr.GetDataString(chat, "feedback_type"); v != "bug_report" {
		t.Errorf("feedback_type = %q", v)
	}
}

func TestTrackerSnapshotIsolated(t *testing.T) {
	tr := NewTracker(TrackerOptions{})
	const chat = "chat-1"
	tr.SetData(chat, "k", "v")

	sess := tr.Get(chat)
	sess.Data["k"] = "mutated"
	sess.Stage = "hijacked"

	if v, _ := tr.GetDataString(chat, "k"); v != "v" {
		t.Errorf("tracker data mutated through snapshot: %q", v)
	}
	if got := tr.Stage(chat); got != StageIdle {
		t.Errorf("tracker stage mutated through snapshot: %q", got)
	}
}

func TestTrackerPurge(t *testing.T) {
	tr := NewTracker(TrackerOptions{TTL: time.Hour})
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	tr.SetStage("old-chat", "thanking")
	clock = clock.Add(3 * time.Hour)
	tr.SetStage("new-chat", "initial_contact")

	if removed := tr.Purge(time.Hour); removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
	if got := tr.Stage("new-chat"); got != "initial_contact" {
		t.Errorf("surviving chat stage = %q", got)
	}
}

func TestTrackerStats(t *testing.T) {
	tr := NewTracker(TrackerOptions{})
	tr.AppendHistory("a", Entry{Text: "1"})
	tr.AppendHistory("a", Entry{Text: "2"})
	tr.AppendHistory("b", Entry{Text: "3"})

	got := tr.Stats()
	want := Stats{ActiveChats: 2, TrackedMessages: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tempKV(t *testing.T) (*KV, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_state.json")
	return NewKV(path), path
}

func TestKVSetGetDelete(t *testing.T) {
	kv, _ := tempKV(t)

	kv.Set("greeting", "hello")
	if got := kv.GetString("greeting", ""); got != "hello" {
		t.Errorf("GetString = %q", got)
	}
	if got := kv.GetString("missing", "fallback"); got != "fallback" {
		t.Errorf("GetString default = %q", got)
	}

	kv.Delete("greeting")
	if _, ok := kv.Get("greeting"); ok {
		t.Error("key survived Delete")
	}
}

func TestKVIncrement(t *testing.T) {
	kv, _ := tempKV(t)

	if got := kv.Increment("counter", 1); got != 1 {
		t.Errorf("first Increment = %d", got)
	}
	if got := kv.Increment("counter", 4); got != 5 {
		t.Errorf("second Increment = %d", got)
	}
	if got := kv.GetInt("counter", 0); got != 5 {
		t.Errorf("GetInt = %d", got)
	}
}

func TestKVAppend(t *testing.T) {
	kv, _ := tempKV(t)

	kv.Set("themes", "onboarding")
	kv.Append("themes", "pricing")
	kv.Append("themes", "reliability")

	val, ok := kv.Get("themes")
	if !ok {
		t.Fatal("themes missing")
	}
	list, ok := val.([]any)
	if !ok {
		t.Fatalf("themes is %T, want []any", val)
	}
	want := []any{"onboarding", "pricing", "reliability"}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestKVPersistsAcrossReopen(t *testing.T) {
	kv, path := tempKV(t)
	kv.Set("messages_sent", 7)
	kv.Conversation("chat-1", func(c *Conversation) {
		c.Set("email", "x@example.com")
		c.MarkComplete()
	})

	reopened := NewKV(path)
	if got := reopened.GetInt("messages_sent", 0); got != 7 {
		t.Errorf("messages_sent after reopen = %d", got)
	}
	reopened.Conversation("chat-1", func(c *Conversation) {
		if got := c.GetString("email", ""); got != "x@example.com" {
			t.Errorf("email after reopen = %q", got)
		}
		if !c.IsComplete() {
			t.Error("conversation should still be complete")
		}
	})
}

func TestKVCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	kv := NewKV(path)
	if keys := kv.Keys(); len(keys) != 0 {
		t.Errorf("Keys = %v, want empty", keys)
	}
	kv.Set("fresh", true)
	if _, ok := NewKV(path).Get("fresh"); !ok {
		t.Error("store did not recover after corrupt load")
	}
}

func TestKVClearAll(t *testing.T) {
	kv, path := tempKV(t)
	kv.Set("a", 1)
	kv.Conversation("chat-1", func(c *Conversation) { c.Set("b", 2) })

	kv.ClearAll()
	if len(kv.Keys()) != 0 {
		t.Error("keys survived ClearAll")
	}
	reopened := NewKV(path)
	reopened.Conversation("chat-1", func(c *Conversation) {
		if _, ok := c.Get("b"); ok {
			t.Error("conversation survived ClearAll")
		}
	})
}

func TestKVConversationClear(t *testing.T) {
	kv, _ := tempKV(t)
	kv.Conversation("chat-1", func(c *Conversation) {
		c.Set("stage", "waiting_for_email")
		c.SaveAll(map[string]any{"title": "Sync", "duration": 30})
	})
	kv.Conversation("chat-1", func(c *Conversation) {
		if got := c.GetString("stage", ""); got != "waiting_for_email" {
			t.Errorf("stage = %q", got)
		}
		c.Clear()
	})
	kv.Conversation("chat-1", func(c *Conversation) {
		if _, ok := c.Get("title"); ok {
			t.Error("conversation data survived Clear")
		}
	})
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/shrey150/imessage-bots/core/logger"
)

const defaultKVPath = "bot_state.json"

// kvFile is the on-disk layout. Conversations live next to plain keys so a
// single file captures everything a bot needs to survive a restart.
type kvFile struct {
	State         map[string]any            `json:"state"`
	Conversations map[string]map[string]any `json:"conversations"`
}

// KV is a persistent key-value store backed by a JSON file.
// Every mutation is flushed to disk via a temp-file rename, so a crash
// mid-write never leaves a truncated store behind.
type KV struct {
	mu    sync.Mutex
	path  string
	state map[string]any
	convs map[string]map[string]any
}

// NewKV opens (or creates) the store at path. An unreadable or corrupt file
// is logged and replaced with an empty store rather than failing startup.
func NewKV(path string) *KV {
	if path == "" {
		path = defaultKVPath
	}
	kv := &KV{
		path:  path,
		state: make(map[string]any),
		convs: make(map[string]map[string]any),
	}
	kv.load()
	return kv
}

func (kv *KV) load() {
	raw, err := os.ReadFile(kv.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn(context.Background(), "state", "kv.load.fail",
				slog.String("path", kv.path),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	var file kvFile
	if err := json.Unmarshal(raw, &file); err != nil {
		logger.Warn(context.Background(), "state", "kv.load.corrupt",
			slog.String("path", kv.path),
			slog.String("err", err.Error()),
		)
		return
	}
	if file.State != nil {
		kv.state = file.State
	}
	if file.Conversations != nil {
		kv.convs = file.Conversations
	}
	logger.Debug(context.Background(), "state", "kv.loaded",
		slog.String("path", kv.path),
		slog.Int("count", len(kv.state)),
	)
}

// save writes the store to disk. Callers must hold the mutex.
func (kv *KV) save() {
	raw, err := json.MarshalIndent(kvFile{State: kv.state, Conversations: kv.convs}, "", "  ")
	if err != nil {
		logger.Error(context.Background(), "state", "kv.save.fail",
			slog.String("path", kv.path),
			slog.String("err", err.Error()),
		)
		return
	}
	tmp := kv.path + ".tmp"
	if dir := filepath.Dir(kv.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		logger.Error(context.Background(), "state", "kv.save.fail",
			slog.String("path", kv.path),
			slog.String("err", err.Error()),
		)
		return
	}
	if err := os.Rename(tmp, kv.path); err != nil {
		logger.Error(context.Background(), "state", "kv.save.fail",
			slog.String("path", kv.path),
			slog.String("err", err.Error()),
		)
	}
}

// Get returns the value stored under key.
func (kv *KV) Get(key string) (any, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	val, ok := kv.state[key]
	return val, ok
}

// GetString returns the value under key as a string, or def if absent.
func (kv *KV) GetString(key, def string) string {
	val, ok := kv.Get(key)
	if !ok {
		return def
	}
	s, ok := val.(string)
	if !ok {
		return def
	}
	return s
}

// GetInt returns the value under key as an int, or def if absent.
// JSON round-trips numbers as float64, so both forms are accepted.
func (kv *KV) GetInt(key string, def int) int {
	val, ok := kv.Get(key)
	if !ok {
		return def
	}
	switch n := val.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Set stores value under key and flushes to disk.
func (kv *KV) Set(key string, value any) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.state[key] = value
	kv.save()
}

// Delete removes key from the store.
func (kv *KV) Delete(key string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if _, ok := kv.state[key]; !ok {
		return
	}
	delete(kv.state, key)
	kv.save()
}

// Increment adds delta to the numeric value under key and returns the result.
// A missing or non-numeric value counts as zero.
func (kv *KV) Increment(key string, delta int) int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	current := 0
	switch n := kv.state[key].(type) {
	case int:
		current = n
	case int64:
		current = int(n)
	case float64:
		current = int(n)
	}
	current += delta
	kv.state[key] = current
	kv.save()
	return current
}

// Append adds value to the list stored under key, wrapping an existing scalar
// into a single-element list first.
func (kv *KV) Append(key string, value any) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var list []any
	switch cur := kv.state[key].(type) {
	case nil:
	case []any:
		list = cur
	default:
		list = []any{cur}
	}
	kv.state[key] = append(list, value)
	kv.save()
}

// Keys returns all plain keys in the store, sorted.
func (kv *KV) Keys() []string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	keys := make([]string, 0, len(kv.state))
	for k := range kv.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearAll wipes every key and conversation.
func (kv *KV) ClearAll() {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.state = make(map[string]any)
	kv.convs = make(map[string]map[string]any)
	kv.save()
}

// Conversation applies fn to the mutable context for one chat and flushes
// afterwards. The context map is only valid inside fn.
func (kv *KV) Conversation(chatGUID string, fn func(c *Conversation)) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	data, ok := kv.convs[chatGUID]
	if !ok {
		data = make(map[string]any)
		kv.convs[chatGUID] = data
	}
	fn(&Conversation{ChatGUID: chatGUID, data: data})
	kv.save()
}

// ClearConversation removes all conversation context for a chat.
func (kv *KV) ClearConversation(chatGUID string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if _, ok := kv.convs[chatGUID]; !ok {
		return
	}
	delete(kv.convs, chatGUID)
	kv.save()
}

// Conversation is scratch space for a multi-step exchange with one chat.
type Conversation struct {
	ChatGUID string
	data     map[string]any
}

// Set stores a value in the conversation context.
func (c *Conversation) Set(key string, value any) {
	c.data[key] = value
}

// Get returns a value from the conversation context.
func (c *Conversation) Get(key string) (any, bool) {
	val, ok := c.data[key]
	return val, ok
}

// GetString returns a conversation value as a string, or def if absent.
func (c *Conversation) GetString(key, def string) string {
	val, ok := c.data[key]
	if !ok {
		return def
	}
	s, ok := val.(string)
	if !ok {
		return def
	}
	return s
}

// SaveAll merges data into the conversation context.
func (c *Conversation) SaveAll(data map[string]any) {
	for k, v := range data {
		c.data[k] = v
	}
}

// Clear empties the conversation context in place.
func (c *Conversation) Clear() {
	for k := range c.data {
		delete(c.data, k)
	}
}

// IsComplete reports whether the conversation has been marked complete.
func (c *Conversation) IsComplete() bool {
	done, _ := c.data["complete"].(bool)
	return done
}

// MarkComplete flags the conversation as finished.
func (c *Conversation) MarkComplete() {
	c.data["complete"] = true
}

// String renders the store path for diagnostics.
func (kv *KV) String() string {
	return fmt.Sprintf("kv(%s)", kv.path)
}

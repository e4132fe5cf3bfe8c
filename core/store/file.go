package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

const defaultStatePath = "chat_states.json"

// fileBackend keeps every chat state in one JSON file, written atomically
// on each mutation. It is the zero-dependency default for single-host bots.
type fileBackend struct {
	mu     sync.Mutex
	path   string
	states map[string]ChatState
	now    func() time.Time
}

// NewFileBackend opens (or creates) the JSON-backed store at path.
func NewFileBackend(path string) (Backend, error) {
	if path == "" {
		path = defaultStatePath
	}
	b := &fileBackend{
		path:   path,
		states: make(map[string]ChatState),
		now:    time.Now,
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *fileBackend) load() error {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", b.path, err)
	}
	if err := json.Unmarshal(raw, &b.states); err != nil {
		logger.DB.Warn("chat states corrupt, starting empty",
			slog.String("event", "db.load"),
			slog.String("path", b.path),
			slog.String("err", err.Error()),
		)
		b.states = make(map[string]ChatState)
		return nil
	}
	logger.DB.Debug("chat states loaded",
		slog.String("event", "db.load"),
		slog.String("path", b.path),
		slog.Int("count", len(b.states)),
	)
	return nil
}

// persist writes the state map to disk. Callers must hold the mutex.
func (b *fileBackend) persist() error {
	raw, err := json.MarshalIndent(b.states, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode states: %w", err)
	}
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("store: rename %s: %w", tmp, err)
	}
	return nil
}

func (b *fileBackend) ChatState(ctx context.Context, chatGUID string) (ChatState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[chatGUID]
	if !ok {
		return ChatState{}, ErrNotFound
	}
	return st, nil
}

func (b *fileBackend) RecordMessage(ctx context.Context, chatGUID string) (ChatState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[chatGUID]
	if !ok {
		st = ChatState{ChatGUID: chatGUID, CreatedAt: b.now()}
	}
	st.UnreadCount++
	st.TotalMessagesSeen++
	st.UpdatedAt = b.now()
	b.states[chatGUID] = st
	if err := b.persist(); err != nil {
		return ChatState{}, err
	}
	return st, nil
}

func (b *fileBackend) MarkRead(ctx context.Context, chatGUID, messageGUID string, readAt int64) (ChatState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[chatGUID]
	if !ok {
		st = ChatState{ChatGUID: chatGUID, CreatedAt: b.now()}
	}
	st.LastReadGUID = messageGUID
	st.LastReadTimestamp = readAt
	st.UnreadCount = 0
	st.UpdatedAt = b.now()
	b.states[chatGUID] = st
	if err := b.persist(); err != nil {
		return ChatState{}, err
	}
	return st, nil
}

func (b *fileBackend) ListChatStates(ctx context.Context) ([]ChatState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChatState, 0, len(b.states))
	for _, st := range b.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatGUID < out[j].ChatGUID })
	return out, nil
}

func (b *fileBackend) Close() error { return nil }

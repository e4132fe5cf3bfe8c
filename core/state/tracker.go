package state

import (
	"sync"
	"time"
)

// Stage identifies a conversation step tracked per chat.
type Stage string

const (
	// StageIdle indicates there is no active conversation in the chat.
	StageIdle Stage = "idle"
)

// Entry is one remembered message in a chat's rolling history.
type Entry struct {
	GUID   string
	Sender string
	Text   string
	FromMe bool
	At     time.Time
}

// Session stores conversation state and rolling history for one chat.
type Session struct {
	Stage         Stage
	Data          map[string]any
	MessageCount  int
	QuestionCount int
	History       []Entry
	StartedAt     time.Time
	LastActive    time.Time
}

// Stats summarizes tracker contents for status endpoints.
type Stats struct {
	ActiveChats     int `json:"active_chats"`
	TrackedMessages int `json:"tracked_messages"`
}

// TrackerOptions bound how much history a tracker keeps per chat.
type TrackerOptions struct {
	MaxHistory int
	TTL        time.Duration
}

// Tracker keeps per-chat conversation sessions in memory.
// All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     TrackerOptions
	now      func() time.Time
}

// NewTracker constructs a tracker with sane defaults if options are zeroed.
func NewTracker(opts TrackerOptions) *Tracker {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 10
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Tracker{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      time.Now,
	}
}

// Get returns a snapshot of the chat's session, or an idle session if none exists.
func (t *Tracker) Get(chatGUID string) Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[chatGUID]
	if !ok {
		return Session{Stage: StageIdle, Data: map[string]any{}}
	}
	return snapshot(sess, t.fresh(sess.History))
}

// Stage returns the current stage of a chat, or StageIdle if none exists.
func (t *Tracker) Stage(chatGUID string) Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if sess, ok := t.sessions[chatGUID]; ok {
		return sess.Stage
	}
	return StageIdle
}

// SetStage updates the stage for a chat, creating a session if necessary.
func (t *Tracker) SetStage(chatGUID string, st Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess := t.ensure(chatGUID)
	sess.Stage = st
	sess.LastActive = t.now()
}

// ClearStage resets the stage to idle without removing session data.
func (t *Tracker) ClearStage(chatGUID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sess, ok := t.sessions[chatGUID]; ok {
		sess.Stage = StageIdle
	}
}

// InProgress reports whether the chat has an active stage other than idle.
func (t *Tracker) InProgress(chatGUID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sess, ok := t.sessions[chatGUID]
	return ok && sess.Stage != StageIdle
}

// SetData stores a key/value pair on the chat session.
func (t *Tracker) SetData(chatGUID, key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess := t.ensure(chatGUID)
	sess.Data[key] = value
}

// GetData retrieves a value by key from the chat session.
func (t *Tracker) GetData(chatGUID, key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sess, ok := t.sessions[chatGUID]
	if !ok {
		return nil, false
	}
	val, ok := sess.Data[key]
	return val, ok
}

// GetDataString retrieves a value by key and asserts it as string.
func (t *Tracker) GetDataString(chatGUID, key string) (string, bool) {
	val, found := t.GetData(chatGUID, key)
	if !found {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// ClearData removes a key/value pair from the chat session.
func (t *Tracker) ClearData(chatGUID, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sess, ok := t.sessions[chatGUID]; ok {
		delete(sess.Data, key)
	}
}

// Advance applies fn to the chat's session under the write lock.
// Handlers use it for read-modify-write transitions that must not interleave.
func (t *Tracker) Advance(chatGUID string, fn func(*Session)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess := t.ensure(chatGUID)
	sess.History = t.fresh(sess.History)
	fn(sess)
	sess.LastActive = t.now()
}

// AppendHistory records a message in the chat's rolling history, trimming
// expired entries and capping the window at MaxHistory.
func (t *Tracker) AppendHistory(chatGUID string, e Entry) {
	if e.At.IsZero() {
		e.At = t.now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	sess := t.ensure(chatGUID)
	sess.History = append(t.fresh(sess.History), e)
	if over := len(sess.History) - t.opts.MaxHistory; over > 0 {
		sess.History = append(sess.History[:0:0], sess.History[over:]...)
	}
	sess.MessageCount++
	sess.LastActive = t.now()
}

// Recent returns up to n unexpired history entries, oldest first.
func (t *Tracker) Recent(chatGUID string, n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[chatGUID]
	if !ok || n <= 0 {
		return nil
	}
	hist := t.fresh(sess.History)
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	out := make([]Entry, len(hist))
	copy(out, hist)
	return out
}

// Previous returns the unexpired entry just before the latest one, if any.
func (t *Tracker) Previous(chatGUID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[chatGUID]
	if !ok {
		return Entry{}, false
	}
	hist := t.fresh(sess.History)
	if len(hist) < 2 {
		return Entry{}, false
	}
	return hist[len(hist)-2], true
}

// Clear removes the entire session for a chat.
func (t *Tracker) Clear(chatGUID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, chatGUID)
}

// Reset replaces the chat's session with a fresh idle one.
func (t *Tracker) Reset(chatGUID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sessions[chatGUID] = &Session{
		Stage:      StageIdle,
		Data:       make(map[string]any),
		StartedAt:  now,
		LastActive: now,
	}
}

// Len reports the number of tracked chats.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Stats reports aggregate counters across all tracked chats.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{ActiveChats: len(t.sessions)}
	for _, sess := range t.sessions {
		s.TrackedMessages += sess.MessageCount
	}
	return s
}

// Purge drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (t *Tracker) Purge(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = t.opts.TTL
	}
	cutoff := t.now().Add(-maxIdle)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for guid, sess := range t.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(t.sessions, guid)
			removed++
		}
	}
	return removed
}

// ensure returns the session for a chat, creating it if needed.
// Callers must hold the write lock.
func (t *Tracker) ensure(chatGUID string) *Session {
	sess, ok := t.sessions[chatGUID]
	if !ok {
		now := t.now()
		sess = &Session{
			Stage:      StageIdle,
			Data:       make(map[string]any),
			StartedAt:  now,
			LastActive: now,
		}
		t.sessions[chatGUID] = sess
	}
	return sess
}

// fresh filters out entries older than the tracker TTL.
func (t *Tracker) fresh(hist []Entry) []Entry {
	cutoff := t.now().Add(-t.opts.TTL)
	for i, e := range hist {
		if e.At.After(cutoff) {
			return hist[i:]
		}
	}
	if len(hist) == 0 {
		return hist
	}
	return nil
}

func snapshot(sess *Session, hist []Entry) Session {
	out := Session{
		Stage:         sess.Stage,
		Data:          make(map[string]any, len(sess.Data)),
		MessageCount:  sess.MessageCount,
		QuestionCount: sess.QuestionCount,
		StartedAt:     sess.StartedAt,
		LastActive:    sess.LastActive,
	}
	for k, v := range sess.Data {
		out.Data[k] = v
	}
	out.History = make([]Entry, len(hist))
	copy(out.History, hist)
	return out
}

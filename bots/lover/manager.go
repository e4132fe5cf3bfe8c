package lover

import (
	"strings"
	"sync"
	"time"

	"github.com/shrey150/imessage-bots/core/state"
)

// Stage names the conversational register the persona answers in.
type Stage string

const (
	StageCasualChat  Stage = "casual_chat"
	StageQuestion    Stage = "responding_to_question"
	StageComforting  Stage = "comforting"
	StageCelebrating Stage = "celebrating"
	StageMissingYou  Stage = "missing_you"
	StagePlanning    Stage = "planning_together"
)

var allStages = []Stage{
	StageCasualChat, StageQuestion, StageComforting,
	StageCelebrating, StageMissingYou, StagePlanning,
}

// Sentiment buckets, checked in order. The first matching bucket wins,
// so a sad question still reads as a question.
var questionWords = []string{"what", "why", "how", "when", "where", "who", "which", "can", "could", "would", "should", "do", "did", "does", "?"}
var sadWords = []string{"sad", "depressed", "upset", "angry", "mad", "frustrated", "stressed", "worried", "anxious", "tired", "exhausted", "bad day", "terrible", "awful", "hate", "cry", "crying"}
var happyWords = []string{"happy", "excited", "great", "awesome", "amazing", "fantastic", "wonderful", "good news", "celebration", "party", "love", "promotion", "success", "accomplished", "proud"}
var planningWords = []string{"plan", "planning", "tomorrow", "weekend", "vacation", "trip", "date", "dinner", "movie", "visit", "meet", "together", "let's", "should we", "want to"}
var missingWords = []string{"miss", "missing", "wish you", "can't wait", "see you", "when will", "lonely", "alone"}

// History beyond this many turns is trimmed to keep AI prompts bounded.
const maxHistoryTurns = 20

// turn is one entry in the rolling conversation history.
type turn struct {
	Role      string
	Content   string
	Sentiment string
	At        time.Time
}

// conversation tracks one chat's state between messages.
type conversation struct {
	stage        Stage
	mood         string
	history      []turn
	lastUserText string
	lastUserAt   time.Time
	lastBotAt    time.Time
	received     int
	sent         int
	awaiting     bool
}

// Manager tracks per-chat conversation state and mirrors every change
// into a state.KV file so counters and history survive restarts.
type Manager struct {
	mu       sync.Mutex
	convs    map[string]*conversation
	hydrated map[string]bool
	kv       *state.KV

	now func() time.Time
}

// NewManager builds a manager over the given store. Conversations already
// in the store are rehydrated lazily, on first touch.
func NewManager(kv *state.KV) *Manager {
	return &Manager{
		convs:    make(map[string]*conversation),
		hydrated: make(map[string]bool),
		kv:       kv,
		now:      time.Now,
	}
}

// analyzeSentiment buckets a message and picks the stage the reply
// should be written in.
func analyzeSentiment(text string) (string, Stage) {
	lower := strings.ToLower(text)
	containsAny := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny(questionWords) || strings.HasSuffix(strings.TrimSpace(text), "?"):
		return "question", StageQuestion
	case containsAny(sadWords):
		return "negative", StageComforting
	case containsAny(happyWords):
		return "positive", StageCelebrating
	case containsAny(planningWords):
		return "planning", StagePlanning
	case containsAny(missingWords):
		return "missing", StageMissingYou
	default:
		return "neutral", StageCasualChat
	}
}

// RecordUserMessage folds an incoming message into the conversation:
// sentiment sets the stage, the rolling mood is recomputed, and a reply
// becomes owed. Returns the stage and mood the reply should match.
func (mg *Manager) RecordUserMessage(chatGUID, text string) (Stage, string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv := mg.conversation(chatGUID)
	sentiment, stage := analyzeSentiment(text)

	conv.history = append(conv.history, turn{
		Role:      "user",
		Content:   text,
		Sentiment: sentiment,
		At:        mg.now(),
	})
	if len(conv.history) > maxHistoryTurns {
		conv.history = conv.history[len(conv.history)-maxHistoryTurns:]
	}
	conv.stage = stage
	conv.lastUserText = text
	conv.lastUserAt = mg.now()
	conv.received++
	conv.awaiting = true
	conv.mood = moodOf(conv.history)

	mg.persist(chatGUID, conv)
	return conv.stage, conv.mood
}

// moodOf derives the user's mood from the sentiments in the last three
// history entries. Two matching signals flip the mood.
func moodOf(history []turn) string {
	window := history
	if len(window) > 3 {
		window = window[len(window)-3:]
	}
	counts := make(map[string]int, 3)
	for _, t := range window {
		if t.Role == "user" && t.Sentiment != "" {
			counts[t.Sentiment]++
		}
	}
	switch {
	case counts["negative"] >= 2:
		return "sad"
	case counts["positive"] >= 2:
		return "happy"
	case counts["question"] >= 2:
		return "curious"
	default:
		return "neutral"
	}
}

// MarkSent records an outbound message, clearing the awaiting flag and
// advancing the send counters.
func (mg *Manager) MarkSent(chatGUID, text string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv := mg.conversation(chatGUID)
	conv.history = append(conv.history, turn{
		Role:    "assistant",
		Content: text,
		At:      mg.now(),
	})
	if len(conv.history) > maxHistoryTurns {
		conv.history = conv.history[len(conv.history)-maxHistoryTurns:]
	}
	conv.lastBotAt = mg.now()
	conv.sent++
	conv.awaiting = false

	mg.persist(chatGUID, conv)
	if mg.kv != nil {
		mg.kv.Increment("total_messages_sent", 1)
		mg.kv.Set("last_activity", mg.now().Format(time.RFC3339))
	}
}

// ShouldSendProactive reports whether enough quiet time has passed to
// reach out unprompted. A chat that is owed a reply is never pinged.
func (mg *Manager) ShouldSendProactive(chatGUID string, interval time.Duration) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv, ok := mg.lookup(chatGUID)
	if !ok {
		return true
	}
	if conv.awaiting {
		return false
	}
	if conv.lastBotAt.IsZero() {
		return true
	}
	return mg.now().Sub(conv.lastBotAt) >= interval
}

// RecentTurn is one history entry exposed to prompt building.
type RecentTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Sentiment string `json:"sentiment,omitempty"`
}

// TurnContext is a point-in-time snapshot used to ground the next AI
// message in what the conversation has been about.
type TurnContext struct {
	New             bool
	Stage           Stage
	Mood            string
	LastUserMessage string
	Awaiting        bool
	MessageCount    int
	Recent          []RecentTurn
	SinceLastUser   time.Duration
}

// Context snapshots the conversation for the responder. Unknown chats
// come back as a fresh casual-chat context.
func (mg *Manager) Context(chatGUID string) TurnContext {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv, ok := mg.lookup(chatGUID)
	if !ok {
		return TurnContext{New: true, Stage: StageCasualChat}
	}

	tc := TurnContext{
		Stage:           conv.stage,
		Mood:            conv.mood,
		LastUserMessage: conv.lastUserText,
		Awaiting:        conv.awaiting,
		MessageCount:    conv.received,
	}
	recent := conv.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, t := range recent {
		content := t.Content
		if len(content) > 100 {
			content = content[:100]
		}
		tc.Recent = append(tc.Recent, RecentTurn{Role: t.Role, Content: content, Sentiment: t.Sentiment})
	}
	if !conv.lastUserAt.IsZero() {
		tc.SinceLastUser = mg.now().Sub(conv.lastUserAt)
	}
	return tc
}

// Mood returns the current rolling mood for a chat, "" when untracked.
func (mg *Manager) Mood(chatGUID string) string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	conv, ok := mg.lookup(chatGUID)
	if !ok {
		return ""
	}
	return conv.mood
}

// Clear drops all state for a chat, in memory and on disk.
func (mg *Manager) Clear(chatGUID string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	delete(mg.convs, chatGUID)
	if mg.kv != nil {
		mg.kv.ClearConversation(chatGUID)
	}
}

// Stats summarizes tracked conversations for the health and stats routes.
type Stats struct {
	TotalConversations  int            `json:"total_conversations"`
	ActiveConversations int            `json:"active_conversations"`
	AwaitingResponses   int            `json:"awaiting_responses"`
	TotalMessagesSent   int            `json:"total_messages_sent"`
	LastActivity        string         `json:"last_activity,omitempty"`
	ConversationStages  map[string]int `json:"conversation_states"`
}

// Stats reports counters across every tracked conversation.
func (mg *Manager) Stats() Stats {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	st := Stats{
		ActiveConversations: len(mg.convs),
		ConversationStages:  make(map[string]int, len(allStages)),
	}
	for _, stage := range allStages {
		st.ConversationStages[string(stage)] = 0
	}
	totalSent := 0
	for _, conv := range mg.convs {
		if conv.awaiting {
			st.AwaitingResponses++
		}
		st.ConversationStages[string(conv.stage)]++
		totalSent += conv.sent
	}
	st.TotalConversations = len(mg.convs)
	st.TotalMessagesSent = totalSent
	if mg.kv != nil {
		st.TotalConversations = mg.kv.GetInt("total_conversations", st.TotalConversations)
		st.TotalMessagesSent = mg.kv.GetInt("total_messages_sent", st.TotalMessagesSent)
		st.LastActivity = mg.kv.GetString("last_activity", "")
	}
	return st
}

// ConversationView is the external snapshot served by the conversation
// route.
type ConversationView struct {
	ChatGUID         string       `json:"chat_guid"`
	Stage            Stage        `json:"state"`
	Mood             string       `json:"user_mood,omitempty"`
	LastUserMessage  string       `json:"last_user_message,omitempty"`
	Awaiting         bool         `json:"awaiting_response"`
	MessagesReceived int          `json:"message_count"`
	MessagesSent     int          `json:"messages_sent"`
	Recent           []RecentTurn `json:"recent_messages"`
}

// ConversationInfo snapshots one chat for the HTTP surface. The second
// return is false for chats the bot has never talked in.
func (mg *Manager) ConversationInfo(chatGUID string) (ConversationView, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv, ok := mg.lookup(chatGUID)
	if !ok {
		return ConversationView{}, false
	}
	view := ConversationView{
		ChatGUID:         chatGUID,
		Stage:            conv.stage,
		Mood:             conv.mood,
		LastUserMessage:  conv.lastUserText,
		Awaiting:         conv.awaiting,
		MessagesReceived: conv.received,
		MessagesSent:     conv.sent,
	}
	recent := conv.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, t := range recent {
		content := t.Content
		if len(content) > 100 {
			content = content[:100]
		}
		view.Recent = append(view.Recent, RecentTurn{Role: t.Role, Content: content, Sentiment: t.Sentiment})
	}
	return view, true
}

// conversation returns the tracked conversation for a chat, rehydrating
// from the store or creating it as needed. Callers must hold the mutex.
func (mg *Manager) conversation(chatGUID string) *conversation {
	if conv, ok := mg.lookup(chatGUID); ok {
		return conv
	}
	conv := &conversation{stage: StageCasualChat}
	mg.convs[chatGUID] = conv
	if mg.kv != nil {
		mg.kv.Increment("total_conversations", 1)
	}
	return conv
}

// lookup finds a conversation in memory, falling back to the store on
// the first miss per chat. Callers must hold the mutex.
func (mg *Manager) lookup(chatGUID string) (*conversation, bool) {
	if conv, ok := mg.convs[chatGUID]; ok {
		return conv, true
	}
	if mg.kv == nil || mg.hydrated[chatGUID] {
		return nil, false
	}
	mg.hydrated[chatGUID] = true
	var conv *conversation
	mg.kv.Conversation(chatGUID, func(c *state.Conversation) {
		if _, ok := c.Get("state"); !ok {
			return
		}
		conv = loadConversation(c)
	})
	if conv == nil {
		return nil, false
	}
	mg.convs[chatGUID] = conv
	return conv, true
}

// persist mirrors a conversation into the store. Callers must hold the
// mutex.
func (mg *Manager) persist(chatGUID string, conv *conversation) {
	if mg.kv == nil {
		return
	}
	mg.kv.Conversation(chatGUID, func(c *state.Conversation) {
		history := make([]any, 0, len(conv.history))
		for _, t := range conv.history {
			history = append(history, map[string]any{
				"role":      t.Role,
				"content":   t.Content,
				"sentiment": t.Sentiment,
				"at":        t.At.Format(time.RFC3339),
			})
		}
		c.SaveAll(map[string]any{
			"state":             string(conv.stage),
			"user_mood":         conv.mood,
			"last_user_message": conv.lastUserText,
			"last_user_at":      timeString(conv.lastUserAt),
			"last_bot_at":       timeString(conv.lastBotAt),
			"message_count":     conv.received,
			"messages_sent":     conv.sent,
			"awaiting_response": conv.awaiting,
			"history":           history,
		})
	})
}

// loadConversation rebuilds a conversation from its stored map.
func loadConversation(c *state.Conversation) *conversation {
	conv := &conversation{
		stage:        Stage(c.GetString("state", string(StageCasualChat))),
		mood:         c.GetString("user_mood", ""),
		lastUserText: c.GetString("last_user_message", ""),
		lastUserAt:   parseTime(c.GetString("last_user_at", "")),
		lastBotAt:    parseTime(c.GetString("last_bot_at", "")),
	}
	if v, ok := c.Get("message_count"); ok {
		conv.received = asInt(v)
	}
	if v, ok := c.Get("messages_sent"); ok {
		conv.sent = asInt(v)
	}
	if v, ok := c.Get("awaiting_response"); ok {
		conv.awaiting, _ = v.(bool)
	}
	if v, ok := c.Get("history"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				t := turn{}
				t.Role, _ = entry["role"].(string)
				t.Content, _ = entry["content"].(string)
				t.Sentiment, _ = entry["sentiment"].(string)
				if at, ok := entry["at"].(string); ok {
					t.At = parseTime(at)
				}
				conv.history = append(conv.history, t)
			}
		}
	}
	return conv
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

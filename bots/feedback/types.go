package feedback

import "time"

// FeedbackType classifies what kind of signal a user message carries.
type FeedbackType string

const (
	TypeFeatureRequest  FeedbackType = "feature_request"
	TypeBugReport       FeedbackType = "bug_report"
	TypeGeneralFeedback FeedbackType = "general_feedback"
	TypeQuestion        FeedbackType = "question"
	TypeComplaint       FeedbackType = "complaint"
	TypePraise          FeedbackType = "praise"
	TypeUsagePattern    FeedbackType = "usage_pattern"
	TypePainPoint       FeedbackType = "pain_point"
)

// Stage is a conversation's position in the interview flow.
type Stage string

const (
	StageInitialContact     Stage = "initial_contact"
	StageCollectingFeedback Stage = "collecting_feedback"
	StageProbingDeeper      Stage = "probing_deeper"
	StageClarifyingDetails  Stage = "clarifying_details"
	StageSummarizing        Stage = "summarizing"
	StageThanking           Stage = "thanking"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

const (
	severityLow    = "low"
	severityMedium = "medium"
	severityHigh   = "high"
)

// Turn is one message in an interview, from either side.
type Turn struct {
	Role         string       `json:"role"`
	Content      string       `json:"content"`
	At           time.Time    `json:"timestamp"`
	FeedbackType FeedbackType `json:"feedback_type,omitempty"`
}

// Feedback is one structured item extracted from a user message.
type Feedback struct {
	Type       FeedbackType `json:"feedback_type"`
	Summary    string       `json:"summary"`
	RawMessage string       `json:"raw_message"`
	At         time.Time    `json:"timestamp"`
}

// Insight aggregates a feedback theme across chats. Chats are counted
// through short hashes so no GUID ever leaves its own conversation.
type Insight struct {
	Type          FeedbackType `json:"feedback_type"`
	Theme         string       `json:"theme"`
	Frequency     int          `json:"frequency_count"`
	AffectedChats int          `json:"affected_chats"`
	FirstSeen     time.Time    `json:"first_seen"`
	LastSeen      time.Time    `json:"last_seen"`
	Severity      string       `json:"severity_level"`
	Probes        []string     `json:"suggested_probes"`

	chatHashes map[string]struct{}
}

// Profile accumulates per-chat engagement counters.
type Profile struct {
	ChatGUID      string               `json:"chat_guid"`
	FirstContact  time.Time            `json:"first_contact"`
	FeedbackItems int                  `json:"total_feedback_items"`
	ByType        map[FeedbackType]int `json:"feedback_types"`
	Engagement    string               `json:"engagement_level"`
}

// Conversation tracks one chat's interview session.
type Conversation struct {
	ChatGUID          string
	Stage             Stage
	History           []Turn
	Current           *Feedback
	Profile           Profile
	ProbesAsked       []string
	CrossProbesAsked  []string
	FeedbackCollected int
	QuestionsAsked    int
	LastInteraction   time.Time
	AwaitingResponse  bool
	Triaged           bool
	TriagedAt         time.Time
}

// TurnContext is a consistent snapshot taken right after a user message
// is folded into its conversation, carrying everything the responder
// needs to pick a reply strategy without touching the manager again.
type TurnContext struct {
	ChatGUID          string
	Stage             Stage
	NewConversation   bool
	FeedbackType      FeedbackType
	HasFeedback       bool
	FeedbackCollected int
	QuestionsAsked    int
	RecentTurns       []Turn
	ShouldProbe       bool
	ShouldSummarize   bool
	CrossChatProbe    string
}

// SessionFeedback is everything a finished interview hands to the triager.
type SessionFeedback struct {
	ChatGUID       string
	Stage          Stage
	QuestionsAsked int
	Turns          int
	Items          []Feedback
}

package feedback

import "time"

// Stats is the aggregate view served by /stats.
type Stats struct {
	TotalConversations  int                    `json:"total_conversations"`
	ActiveConversations int                    `json:"active_conversations"`
	TotalFeedbackItems  int                    `json:"total_feedback_items"`
	FeedbackByType      map[FeedbackType]int   `json:"feedback_by_type"`
	ConversationStages  map[Stage]int          `json:"conversation_states"`
	CrossChatInsights   map[string]InsightView `json:"cross_chat_insights"`
	MonitoredChats      int                    `json:"monitored_chats"`
	LastActivity        *time.Time             `json:"last_activity,omitempty"`
}

// InsightView is the outward shape of a cross-chat insight.
type InsightView struct {
	Frequency     int    `json:"frequency"`
	AffectedChats int    `json:"affected_chats"`
	Severity      string `json:"severity"`
	Theme         string `json:"theme"`
}

// SummaryItem is one recent feedback entry in the summary view.
type SummaryItem struct {
	Type    FeedbackType `json:"type"`
	Content string       `json:"content"`
	At      time.Time    `json:"timestamp"`
}

// Summary is the /feedback-summary payload.
type Summary struct {
	TotalConversations int                  `json:"total_conversations"`
	ByType             map[FeedbackType]int `json:"feedback_by_type"`
	Recent             []SummaryItem        `json:"recent_feedback"`
}

// ConversationInfo is the per-chat debug view.
type ConversationInfo struct {
	ChatGUID          string               `json:"chat_guid"`
	Stage             Stage                `json:"state"`
	FeedbackCollected int                  `json:"total_feedback_collected"`
	QuestionsAsked    int                  `json:"total_questions_asked"`
	Engagement        string               `json:"engagement_level"`
	FeedbackByType    map[FeedbackType]int `json:"feedback_types"`
	Turns             int                  `json:"conversation_length"`
	LastInteraction   time.Time            `json:"last_interaction"`
	CurrentType       FeedbackType         `json:"current_feedback_type,omitempty"`
	CurrentSummary    string               `json:"current_feedback_summary,omitempty"`
	Triaged           bool                 `json:"triaged"`
}

// Stats snapshots the aggregate collection state.
func (mg *Manager) Stats() Stats {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	s := Stats{
		TotalConversations: mg.totalConversations,
		TotalFeedbackItems: mg.totalFeedback,
		FeedbackByType:     make(map[FeedbackType]int, len(mg.byType)),
		ConversationStages: make(map[Stage]int),
		CrossChatInsights:  mg.insightViewsLocked(),
		MonitoredChats:     mg.monitoredChats,
	}
	for t, n := range mg.byType {
		s.FeedbackByType[t] = n
	}
	cutoff := time.Now().Add(-activeWindow)
	for _, conv := range mg.conversations {
		s.ConversationStages[conv.Stage]++
		if conv.LastInteraction.After(cutoff) {
			s.ActiveConversations++
		}
	}
	if !mg.lastActivity.IsZero() {
		at := mg.lastActivity
		s.LastActivity = &at
	}
	return s
}

// InsightViews exports the cross-chat insight table.
func (mg *Manager) InsightViews() map[string]InsightView {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.insightViewsLocked()
}

func (mg *Manager) insightViewsLocked() map[string]InsightView {
	views := make(map[string]InsightView, len(mg.insights))
	for theme, ins := range mg.insights {
		views[theme] = InsightView{
			Frequency:     ins.Frequency,
			AffectedChats: ins.AffectedChats,
			Severity:      ins.Severity,
			Theme:         ins.Theme,
		}
	}
	return views
}

// FeedbackSummary lists feedback counts by type plus the ten most recent
// items across every conversation.
func (mg *Manager) FeedbackSummary() Summary {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	summary := Summary{
		TotalConversations: len(mg.conversations),
		ByType:             make(map[FeedbackType]int),
	}
	for _, guid := range sortedKeys(mg.conversations) {
		for _, turn := range mg.conversations[guid].History {
			if turn.Role != roleUser || turn.FeedbackType == "" || turn.FeedbackType == TypeQuestion {
				continue
			}
			summary.ByType[turn.FeedbackType]++
			if len(summary.Recent) < 10 {
				summary.Recent = append(summary.Recent, SummaryItem{
					Type:    turn.FeedbackType,
					Content: truncate(turn.Content, 100),
					At:      turn.At,
				})
			}
		}
	}
	return summary
}

// ConversationInfo snapshots one conversation for the debug endpoint.
func (mg *Manager) ConversationInfo(chatGUID string) (ConversationInfo, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv, ok := mg.conversations[chatGUID]
	if !ok {
		return ConversationInfo{}, false
	}
	info := ConversationInfo{
		ChatGUID:          chatGUID,
		Stage:             conv.Stage,
		FeedbackCollected: conv.FeedbackCollected,
		QuestionsAsked:    conv.QuestionsAsked,
		Engagement:        conv.Profile.Engagement,
		FeedbackByType:    make(map[FeedbackType]int, len(conv.Profile.ByType)),
		Turns:             len(conv.History),
		LastInteraction:   conv.LastInteraction,
		Triaged:           conv.Triaged,
	}
	for t, n := range conv.Profile.ByType {
		info.FeedbackByType[t] = n
	}
	if conv.Current != nil {
		info.CurrentType = conv.Current.Type
		info.CurrentSummary = conv.Current.Summary
	}
	return info, true
}

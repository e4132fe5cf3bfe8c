package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"
)

// History beyond this many turns is trimmed to keep AI prompts bounded.
const maxHistoryTurns = 20

const activeWindow = 24 * time.Hour

var bugWords = []string{"bug", "broken", "error", "crash", "doesn't work", "not working", "issue", "problem", "glitch", "fail"}
var featureWords = []string{"feature", "add", "would love", "wish", "could you", "suggestion", "enhancement", "improvement", "missing"}
var questionWords = []string{"how", "what", "why", "when", "where", "who", "which", "can", "could", "would", "should"}
var complaintWords = []string{"hate", "annoying", "frustrated", "difficult", "hard", "confusing", "slow", "bad"}
var praiseWords = []string{"love", "great", "awesome", "amazing", "fantastic", "helpful", "useful", "perfect", "excellent"}
var usageWords = []string{"use", "using", "workflow", "process", "routine", "usually", "always", "typically"}

// momTestProbes holds interview questions per feedback type that ask
// about concrete past behavior instead of hypotheticals.
var momTestProbes = map[FeedbackType][]string{
	TypeFeatureRequest: {
		"What problem were you trying to solve when you realized you needed this feature?",
		"How do you currently handle this without the feature? What's your workaround?",
		"Can you walk me through the last time you faced this exact situation?",
		"What would happen if this feature didn't exist at all?",
		"How often do you run into this issue - daily, weekly, or just occasionally?",
	},
	TypeBugReport: {
		"What were you trying to accomplish when this happened?",
		"How has this bug impacted your workflow or goals?",
		"What did you expect to happen instead?",
		"Is this something that happens every time or just sometimes?",
		"How did you end up working around this issue?",
	},
	TypePainPoint: {
		"How long have you been dealing with this problem?",
		"What solutions have you tried before finding our product?",
		"How much time or money does this problem cost you?",
		"What would your life look like if this problem was completely solved?",
		"Who else is affected by this problem besides you?",
	},
	TypeUsagePattern: {
		"What typically triggers you to use this feature?",
		"How does this fit into your broader workflow?",
		"What do you usually do right before and after using this?",
		"How did you discover this was possible?",
		"What would make this even more useful for you?",
	},
	TypeGeneralFeedback: {
		"What were you hoping to achieve when you first tried our product?",
		"How does this compare to what you were using before?",
		"What almost stopped you from trying us out?",
		"What would you tell a friend who's considering using this?",
		"What's the most important thing we could improve?",
	},
}

// themeProbes seeds cross-chat probes for the well-known themes.
var themeProbes = map[string][]string{
	"payment_issues": {
		"Have you noticed any patterns with when payment issues occur?",
		"What's your typical flow when making payments?",
		"How do you currently handle payment-related problems?",
	},
	"authentication_issues": {
		"What's your usual process for logging in?",
		"How often do you find yourself having to reset things?",
		"What would make the login experience smoother for you?",
	},
	"performance_issues": {
		"What time of day do you typically use the app?",
		"How does the speed compare to other similar tools you use?",
		"What's your internet setup like when you're using it?",
	},
	"usability_confusion": {
		"What's the first thing you try when you get stuck?",
		"How do you usually figure out new features?",
		"What would make the interface more intuitive for you?",
	},
	"notification_features": {
		"How do you prefer to be notified about things?",
		"What notifications do you find most useful in other apps?",
		"How often would you want to hear from us?",
	},
	"search_features": {
		"What do you typically search for most often?",
		"How do you organize your information currently?",
		"What would make finding things faster for you?",
	},
}

var genericThemeProbes = []string{
	"How often does this type of situation come up for you?",
	"What's your current workaround for this?",
	"How would solving this change your workflow?",
}

// Manager holds every interview conversation plus the aggregate
// cross-chat insight state. All methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	conversations map[string]*Conversation
	insights      map[string]*Insight

	totalConversations int
	totalFeedback      int
	byType             map[FeedbackType]int
	lastActivity       time.Time

	monitoredChats int
	maxQuestions   int
	insightsOn     bool
	probeFrequency float64

	randFloat func() float64
	randIntN  func(int) int
}

// NewManager builds an empty manager configured from the bot settings.
func NewManager(s Settings) *Manager {
	return &Manager{
		conversations:  make(map[string]*Conversation),
		insights:       make(map[string]*Insight),
		byType:         make(map[FeedbackType]int),
		monitoredChats: len(s.ChatGUIDs),
		maxQuestions:   s.MaxQuestions,
		insightsOn:     s.CrossChatInsights,
		probeFrequency: s.ProbeFrequency,
		randFloat:      rand.Float64,
		randIntN:       rand.IntN,
	}
}

// ClassifyFeedback buckets a message by its strongest keyword signal.
// Checks run in fixed order so a message mentioning both a bug and a
// wish lands on the bug.
func ClassifyFeedback(message string) FeedbackType {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, bugWords):
		return TypeBugReport
	case containsAny(lower, featureWords):
		return TypeFeatureRequest
	case containsAny(lower, questionWords) || strings.HasSuffix(strings.TrimSpace(message), "?"):
		return TypeQuestion
	case containsAny(lower, complaintWords):
		return TypeComplaint
	case containsAny(lower, praiseWords):
		return TypePraise
	case containsAny(lower, usageWords):
		return TypeUsagePattern
	}
	return TypeGeneralFeedback
}

// themeFor maps feedback to a privacy-safe bucket. Only the bucket name
// crosses chat boundaries, never the message itself.
func themeFor(t FeedbackType, message string) string {
	lower := strings.ToLower(message)
	switch t {
	case TypeBugReport:
		switch {
		case containsAny(lower, []string{"payment", "billing", "charge", "subscription"}):
			return "payment_issues"
		case containsAny(lower, []string{"login", "signup", "account", "password"}):
			return "authentication_issues"
		case containsAny(lower, []string{"slow", "loading", "performance", "speed"}):
			return "performance_issues"
		case containsAny(lower, []string{"crash", "freeze", "error", "broken"}):
			return "stability_issues"
		}
		return "general_bugs"
	case TypeFeatureRequest:
		switch {
		case containsAny(lower, []string{"notification", "alert", "reminder"}):
			return "notification_features"
		case containsAny(lower, []string{"search", "find", "filter"}):
			return "search_features"
		case containsAny(lower, []string{"export", "import", "download", "upload"}):
			return "data_management"
		case containsAny(lower, []string{"mobile", "app", "phone"}):
			return "mobile_features"
		}
		return "general_features"
	case TypePainPoint:
		switch {
		case containsAny(lower, []string{"confusing", "complex", "hard", "difficult"}):
			return "usability_confusion"
		case containsAny(lower, []string{"time", "slow", "manual", "tedious"}):
			return "efficiency_issues"
		case containsAny(lower, []string{"integration", "connect", "sync"}):
			return "integration_problems"
		}
		return "workflow_friction"
	}
	return string(t) + "_general"
}

func probesForTheme(theme string) []string {
	if probes, ok := themeProbes[theme]; ok {
		return probes
	}
	return genericThemeProbes
}

// chatHash identifies a chat in cross-chat bookkeeping. Eight hex chars
// tell chats apart without retaining the GUID.
func chatHash(chatGUID string) string {
	sum := sha256.Sum256([]byte(chatGUID))
	return hex.EncodeToString(sum[:])[:8]
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ProcessUserMessage folds a user message into its conversation: it
// classifies the text, extracts structured feedback, advances the stage,
// updates cross-chat insights, and returns the snapshot driving the reply.
func (mg *Manager) ProcessUserMessage(chatGUID, text string) TurnContext {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	now := time.Now()
	conv, isNew := mg.conversationLocked(chatGUID, now)
	ftype := ClassifyFeedback(text)

	conv.History = append(conv.History, Turn{Role: roleUser, Content: text, At: now, FeedbackType: ftype})
	if len(conv.History) > maxHistoryTurns {
		conv.History = conv.History[len(conv.History)-maxHistoryTurns:]
	}
	conv.LastInteraction = now
	conv.AwaitingResponse = true
	mg.lastActivity = now

	// Questions carry no feedback payload of their own.
	if ftype != TypeQuestion {
		fb := &Feedback{Type: ftype, Summary: truncate(text, 200), RawMessage: text, At: now}
		conv.Current = fb
		conv.FeedbackCollected++
		conv.Profile.FeedbackItems++
		conv.Profile.ByType[ftype]++
		switch {
		case conv.Profile.FeedbackItems >= 5:
			conv.Profile.Engagement = "power_user"
		case conv.Profile.FeedbackItems >= 2:
			conv.Profile.Engagement = "engaged"
		}
		mg.totalFeedback++
		mg.byType[ftype]++
		mg.recordInsightLocked(fb, chatGUID, now)
	}

	switch {
	case conv.Stage == StageInitialContact:
		conv.Stage = StageCollectingFeedback
	case conv.Stage == StageCollectingFeedback && ftype != TypeQuestion:
		conv.Stage = StageProbingDeeper
	case conv.Stage == StageProbingDeeper:
		if conv.QuestionsAsked >= mg.maxQuestions || sufficientDetail(conv) {
			conv.Stage = StageSummarizing
		}
	}
	if mg.shouldSummarizeLocked(conv) &&
		(conv.Stage == StageCollectingFeedback || conv.Stage == StageProbingDeeper) {
		conv.Stage = StageSummarizing
	}

	tc := TurnContext{
		ChatGUID:          chatGUID,
		Stage:             conv.Stage,
		NewConversation:   isNew,
		FeedbackType:      ftype,
		HasFeedback:       ftype != TypeQuestion,
		FeedbackCollected: conv.FeedbackCollected,
		QuestionsAsked:    conv.QuestionsAsked,
		RecentTurns:       recentTurns(conv, 5),
		ShouldProbe:       mg.shouldProbeLocked(conv),
		ShouldSummarize:   mg.shouldSummarizeLocked(conv),
	}
	tc.CrossChatProbe = mg.crossChatProbeLocked(conv)
	return tc
}

// MarkBotMessage records an outgoing reply. Questions count against the
// per-session cap; a non-question sent while summarizing closes the
// interview out to thanking.
func (mg *Manager) MarkBotMessage(chatGUID, text string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	conv, ok := mg.conversations[chatGUID]
	if !ok {
		return
	}
	now := time.Now()
	conv.History = append(conv.History, Turn{Role: roleAssistant, Content: text, At: now})
	if len(conv.History) > maxHistoryTurns {
		conv.History = conv.History[len(conv.History)-maxHistoryTurns:]
	}
	conv.LastInteraction = now
	conv.AwaitingResponse = false
	mg.lastActivity = now

	if isQuestion(text) {
		conv.QuestionsAsked++
	} else if conv.Stage == StageSummarizing {
		conv.Stage = StageThanking
	}
}

// SessionEnding reports whether the interview has wound down far enough
// to hand its feedback to the triager.
func (mg *Manager) SessionEnding(chatGUID string) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	conv, ok := mg.conversations[chatGUID]
	if !ok {
		return false
	}
	return mg.sessionEndingLocked(conv)
}

// BeginTriage atomically claims a session for triage. It returns false
// when the session was already claimed, so concurrent session-end
// triggers file issues exactly once.
func (mg *Manager) BeginTriage(chatGUID string) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	conv, ok := mg.conversations[chatGUID]
	if !ok || conv.Triaged {
		return false
	}
	conv.Triaged = true
	conv.TriagedAt = time.Now()
	return true
}

// BankProbe hands out the next unused canned probe for a feedback type.
// Used when AI probe generation fails.
func (mg *Manager) BankProbe(chatGUID string, t FeedbackType) string {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	probes, ok := momTestProbes[t]
	if !ok {
		probes = momTestProbes[TypeGeneralFeedback]
	}
	conv := mg.conversations[chatGUID]
	for _, probe := range probes {
		if conv != nil && contains(conv.ProbesAsked, probe) {
			continue
		}
		if conv != nil {
			conv.ProbesAsked = append(conv.ProbesAsked, probe)
		}
		return probe
	}
	return "Can you tell me more about what led to this situation?"
}

// CrossChatProbeFor draws a cross-chat probe for a chat, subject to the
// same frequency gate as in-conversation probes. Empty when nothing fits.
func (mg *Manager) CrossChatProbeFor(chatGUID string) string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	conv, ok := mg.conversations[chatGUID]
	if !ok {
		return ""
	}
	return mg.crossChatProbeLocked(conv)
}

// ActiveChats lists every chat with an open conversation.
func (mg *Manager) ActiveChats() []string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]string, 0, len(mg.conversations))
	for guid := range mg.conversations {
		out = append(out, guid)
	}
	sort.Strings(out)
	return out
}

// CollectForTriage exports one session's feedback items.
func (mg *Manager) CollectForTriage(chatGUID string) SessionFeedback {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	sf := SessionFeedback{ChatGUID: chatGUID}
	conv, ok := mg.conversations[chatGUID]
	if !ok {
		return sf
	}
	sf.Stage = conv.Stage
	sf.QuestionsAsked = conv.QuestionsAsked
	sf.Turns = len(conv.History)
	sf.Items = collectItems(conv)
	return sf
}

// CollectAllForTriage exports feedback items from every conversation plus
// the full insight table, for the manual triage endpoint.
func (mg *Manager) CollectAllForTriage() ([]Feedback, []Insight) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	var items []Feedback
	for _, guid := range sortedKeys(mg.conversations) {
		items = append(items, collectItems(mg.conversations[guid])...)
	}
	insights := make([]Insight, 0, len(mg.insights))
	for _, theme := range sortedKeys(mg.insights) {
		insights = append(insights, *mg.insights[theme])
	}
	return items, insights
}

// InsightsForTriage returns insights seen more than once whose type
// matches any of the session's feedback types.
func (mg *Manager) InsightsForTriage(types []FeedbackType) []Insight {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	var out []Insight
	for _, theme := range sortedKeys(mg.insights) {
		ins := mg.insights[theme]
		if ins.Frequency <= 1 {
			continue
		}
		for _, t := range types {
			if ins.Type == t {
				out = append(out, *ins)
				break
			}
		}
	}
	return out
}

func collectItems(conv *Conversation) []Feedback {
	var items []Feedback
	for _, turn := range conv.History {
		if turn.Role != roleUser || turn.FeedbackType == "" || turn.FeedbackType == TypeQuestion {
			continue
		}
		items = append(items, Feedback{
			Type:       turn.FeedbackType,
			Summary:    truncate(turn.Content, 200),
			RawMessage: turn.Content,
			At:         turn.At,
		})
	}
	// Current survives history trimming; include it only when the turn
	// that produced it is already gone.
	if conv.Current != nil {
		found := false
		for _, item := range items {
			if item.RawMessage == conv.Current.RawMessage {
				found = true
				break
			}
		}
		if !found {
			items = append(items, *conv.Current)
		}
	}
	return items
}

func (mg *Manager) conversationLocked(chatGUID string, now time.Time) (*Conversation, bool) {
	if conv, ok := mg.conversations[chatGUID]; ok {
		return conv, false
	}
	conv := &Conversation{
		ChatGUID: chatGUID,
		Stage:    StageInitialContact,
		Profile: Profile{
			ChatGUID:     chatGUID,
			FirstContact: now,
			ByType:       make(map[FeedbackType]int),
			Engagement:   "new",
		},
		LastInteraction: now,
	}
	mg.conversations[chatGUID] = conv
	mg.totalConversations++
	return conv, true
}

func (mg *Manager) recordInsightLocked(fb *Feedback, chatGUID string, now time.Time) {
	if !mg.insightsOn {
		return
	}
	theme := themeFor(fb.Type, fb.RawMessage)
	hash := chatHash(chatGUID)

	ins, ok := mg.insights[theme]
	if !ok {
		sev := severityMedium
		if fb.Type == TypeBugReport || fb.Type == TypePainPoint {
			sev = severityHigh
		}
		mg.insights[theme] = &Insight{
			Type:          fb.Type,
			Theme:         theme,
			Frequency:     1,
			AffectedChats: 1,
			FirstSeen:     now,
			LastSeen:      now,
			Severity:      sev,
			Probes:        probesForTheme(theme),
			chatHashes:    map[string]struct{}{hash: {}},
		}
		return
	}

	ins.Frequency++
	ins.LastSeen = now
	if _, seen := ins.chatHashes[hash]; !seen {
		ins.chatHashes[hash] = struct{}{}
		ins.AffectedChats++
	}
	switch {
	case ins.Frequency >= 5 || fb.Type == TypeBugReport || fb.Type == TypePainPoint:
		ins.Severity = severityHigh
	case ins.Frequency >= 3:
		ins.Severity = severityMedium
	}
}

func (mg *Manager) crossChatProbeLocked(conv *Conversation) string {
	if !mg.insightsOn {
		return ""
	}
	if mg.randFloat() > mg.probeFrequency {
		return ""
	}

	var candidates []*Insight
	for _, theme := range sortedKeys(mg.insights) {
		ins := mg.insights[theme]
		if ins.AffectedChats < 2 || ins.Severity == severityLow {
			continue
		}
		if anyAsked(ins.Probes, conv.CrossProbesAsked) {
			continue
		}
		candidates = append(candidates, ins)
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		hi, hj := candidates[i].Severity == severityHigh, candidates[j].Severity == severityHigh
		if hi != hj {
			return hi
		}
		return candidates[i].Frequency > candidates[j].Frequency
	})
	probes := candidates[0].Probes
	probe := probes[mg.randIntN(len(probes))]
	conv.CrossProbesAsked = append(conv.CrossProbesAsked, probe)
	return probe
}

func (mg *Manager) shouldProbeLocked(conv *Conversation) bool {
	if conv.QuestionsAsked >= mg.maxQuestions {
		return false
	}
	if conv.Current == nil {
		return false
	}
	if sufficientDetail(conv) {
		return false
	}
	return conv.Stage == StageProbingDeeper
}

func (mg *Manager) shouldSummarizeLocked(conv *Conversation) bool {
	return conv.QuestionsAsked >= mg.maxQuestions ||
		(conv.QuestionsAsked >= mg.maxQuestions-1 && sufficientDetail(conv))
}

func (mg *Manager) sessionEndingLocked(conv *Conversation) bool {
	return conv.Stage == StageSummarizing || conv.Stage == StageThanking ||
		(conv.QuestionsAsked >= mg.maxQuestions && conv.FeedbackCollected > 0)
}

// sufficientDetail gates early summarizing. Bug reports need the what
// plus either device context or the action attempted; everything else
// stops after two answered questions.
func sufficientDetail(conv *Conversation) bool {
	if conv.Current == nil {
		return false
	}
	if conv.Current.Type == TypeBugReport {
		start := len(conv.History) - 6
		if start < 0 {
			start = 0
		}
		var recent []string
		for _, turn := range conv.History[start:] {
			if turn.Role == roleUser {
				recent = append(recent, strings.ToLower(turn.Content))
			}
		}
		what := anyContains(recent, "when", "pressed", "clicked", "tried")
		device := anyContains(recent, "iphone", "android", "mobile", "wifi", "data")
		action := anyContains(recent, "trying to", "wanted to", "ordering", "using")
		return what && (device || action)
	}
	return conv.QuestionsAsked >= 2
}

func isQuestion(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"?", "how", "what", "why", "when", "where", "who", "which", "can you", "could you", "would you"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func recentTurns(conv *Conversation, n int) []Turn {
	start := len(conv.History) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(conv.History)-start)
	copy(out, conv.History[start:])
	return out
}

func anyContains(haystacks []string, needles ...string) bool {
	for _, h := range haystacks {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

func anyAsked(probes, asked []string) bool {
	for _, p := range probes {
		if contains(asked, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

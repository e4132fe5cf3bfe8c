package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/linear"
	"github.com/shrey150/imessage-bots/core/openai"
)

const triageTemperature = 0.3
const triageMaxTokens = 3000

const triageSystemPrompt = `You are an expert product manager tasked with triaging user feedback into actionable Linear issues.

You will receive a collection of feedback from users and need to:
1. Group related feedback together
2. Create clear, actionable issue titles and descriptions
3. Categorize feedback by type and priority
4. Format everything in structured markdown for Linear

FEEDBACK TYPES:
- Bug Report: Technical issues, crashes, errors
- Feature Request: New functionality users want
- Pain Point: Workflow problems, user frustration
- General Feedback: Overall product feedback

PRIORITY LEVELS:
- High: Critical bugs, major pain points affecting many users
- Medium: Important features, moderate bugs
- Low: Nice-to-have features, minor improvements

For each issue, provide:
- "title": Clear, concise summary (max 80 chars)
- "description": Detailed markdown covering the problem statement, user impact, relevant anonymized user quotes, cross-chat insights if applicable, and suggested next steps
- "type": bug_report, feature_request, pain_point, or general_feedback
- "priority": high, medium, or low
- "labels": Relevant tags (max 3)

IMPORTANT:
- Combine similar feedback into single issues
- Keep user information anonymous
- Focus on actionable insights
- Use markdown formatting for descriptions
- Be specific about the problem and impact

Return your response as a JSON array of issue objects.`

// IssueDraft is one issue as proposed by the triage model.
type IssueDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels"`
}

// Triager formats collected feedback with OpenAI and files Linear issues.
type Triager struct {
	ai     *openai.Client
	linear *linear.Client
}

// NewTriager wires the AI formatter to a Linear workspace.
func NewTriager(ai *openai.Client, lc *linear.Client) *Triager {
	return &Triager{ai: ai, linear: lc}
}

// LinearClient exposes the underlying client for status checks.
func (t *Triager) LinearClient() *linear.Client { return t.linear }

// TriageSession files one chat session's feedback as Linear issues. The
// returned slice holds every issue actually created.
func (t *Triager) TriageSession(ctx context.Context, session SessionFeedback, insights []Insight) ([]*linear.Issue, error) {
	if len(session.Items) == 0 {
		return nil, nil
	}
	teamID, err := t.linear.TeamID(ctx)
	if err != nil {
		return nil, fmt.Errorf("feedback: resolve linear team: %w", err)
	}
	drafts, err := t.formatIssues(ctx, session.Items, insights)
	if err != nil {
		return nil, err
	}

	footer := sessionFooter(session)
	var created []*linear.Issue
	var lastErr error
	for _, draft := range drafts {
		issue, err := t.createIssue(ctx, teamID, draft, footer)
		if err != nil {
			lastErr = err
			continue
		}
		created = append(created, issue)
	}
	if len(created) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return created, nil
}

// TriageAll files feedback collected across every conversation.
func (t *Triager) TriageAll(ctx context.Context, items []Feedback, insights []Insight) ([]*linear.Issue, error) {
	if len(items) == 0 {
		return nil, nil
	}
	teamID, err := t.linear.TeamID(ctx)
	if err != nil {
		return nil, fmt.Errorf("feedback: resolve linear team: %w", err)
	}
	drafts, err := t.formatIssues(ctx, items, insights)
	if err != nil {
		return nil, err
	}

	var created []*linear.Issue
	var lastErr error
	for _, draft := range drafts {
		issue, err := t.createIssue(ctx, teamID, draft, "")
		if err != nil {
			lastErr = err
			continue
		}
		created = append(created, issue)
	}
	if len(created) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return created, nil
}

func (t *Triager) createIssue(ctx context.Context, teamID string, draft IssueDraft, footer string) (*linear.Issue, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = "Untitled Feedback"
	}
	return t.linear.CreateIssue(ctx, linear.IssueInput{
		TeamID:      teamID,
		Title:       title,
		Description: draft.Description + footer,
		Priority:    priorityFor(draft.Type, draft.Priority),
	})
}

// formatIssues asks the model to group the raw feedback into issue drafts.
func (t *Triager) formatIssues(ctx context.Context, items []Feedback, insights []Insight) ([]IssueDraft, error) {
	user := fmt.Sprintf(`Here is the feedback collected from users:

%s

Please triage this feedback into Linear issues following the format specified. Group similar feedback together and focus on the most actionable insights.`, feedbackDigest(items, insights))

	text, err := t.ai.CompleteText(ctx, triageSystemPrompt, user, triageTemperature, triageMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("feedback: format triage drafts: %w", err)
	}
	drafts, err := parseIssueDrafts(text)
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// parseIssueDrafts pulls a JSON array out of the model response, which
// may be wrapped in prose or code fences.
func parseIssueDrafts(text string) ([]IssueDraft, error) {
	raw := text
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start != -1 && end > start {
		raw = text[start : end+1]
	}
	var drafts []IssueDraft
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil {
		return nil, fmt.Errorf("feedback: parse triage drafts: %w", err)
	}
	return drafts, nil
}

// feedbackDigest renders items and recurring insights as markdown for
// the triage prompt.
func feedbackDigest(items []Feedback, insights []Insight) string {
	var sb strings.Builder
	sb.WriteString("## Individual Feedback Items")
	for i, item := range items {
		fmt.Fprintf(&sb, "\n\n### Feedback #%d\n", i+1)
		fmt.Fprintf(&sb, "**Type**: %s\n", item.Type)
		fmt.Fprintf(&sb, "**Date**: %s\n", item.At.Format("2006-01-02 15:04"))
		fmt.Fprintf(&sb, "**Summary**: %s\n", item.Summary)
		fmt.Fprintf(&sb, "**Raw Message**: %s", item.RawMessage)
	}

	var recurring []Insight
	for _, ins := range insights {
		if ins.Frequency > 1 {
			recurring = append(recurring, ins)
		}
	}
	if len(recurring) > 0 {
		sb.WriteString("\n\n## Cross-Chat Insights")
		for _, ins := range recurring {
			fmt.Fprintf(&sb, "\n\n### %s\n", themeTitle(ins.Theme))
			fmt.Fprintf(&sb, "**Type**: %s\n", ins.Type)
			fmt.Fprintf(&sb, "**Frequency**: Mentioned %d times\n", ins.Frequency)
			fmt.Fprintf(&sb, "**Affected Chats**: %d different users\n", ins.AffectedChats)
			fmt.Fprintf(&sb, "**Severity**: %s\n", ins.Severity)
			fmt.Fprintf(&sb, "**First Seen**: %s\n", ins.FirstSeen.Format("2006-01-02"))
			fmt.Fprintf(&sb, "**Last Seen**: %s", ins.LastSeen.Format("2006-01-02"))
		}
	}
	return sb.String()
}

// sessionFooter appends anonymized session context to issue descriptions.
func sessionFooter(session SessionFeedback) string {
	var sb strings.Builder
	sb.WriteString("\n\n---\n**Session Context:**\n")
	fmt.Fprintf(&sb, "- Chat Session: %s (anonymized)\n", chatHash(session.ChatGUID))
	fmt.Fprintf(&sb, "- Session State: %s\n", session.Stage)
	fmt.Fprintf(&sb, "- Total Questions Asked: %d\n", session.QuestionsAsked)
	fmt.Fprintf(&sb, "- Feedback Items: %d\n", len(session.Items))
	fmt.Fprintf(&sb, "- Created: %s\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	return sb.String()
}

// priorityFor maps a draft's type and level onto Linear's 1..4 scale
// (1 urgent, 4 low). Bugs outrank pain points outrank feature requests.
func priorityFor(issueType, level string) int {
	switch issueType {
	case string(TypeBugReport):
		switch level {
		case severityHigh:
			return 1
		case severityMedium:
			return 2
		}
		return 3
	case string(TypePainPoint):
		if level == severityHigh {
			return 2
		}
		return 3
	case string(TypeFeatureRequest):
		if level == severityHigh {
			return 3
		}
		return 4
	}
	return 3
}

func themeTitle(theme string) string {
	words := strings.Split(theme, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

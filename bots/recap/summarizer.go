package recap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/bluebubbles"
)

const summarySystemPrompt = "You are a helpful assistant that summarizes group chat conversations."

const summaryTemperature = 0.3

// entry is one message prepared for summarization.
type entry struct {
	Sender string
	At     time.Time
	Text   string
	FromMe bool
}

// Recap is the result of summarizing a window of chat messages.
type Recap struct {
	ChatGUID         string   `json:"chat_guid"`
	MessagesAnalyzed int      `json:"messages_analyzed"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	Participants     []string `json:"participants"`
	TimeRange        string   `json:"time_range"`
}

// prepareMessages converts relay messages (newest first) into entries in
// chronological order, dropping anything without text.
func prepareMessages(raw []bluebubbles.Message) []entry {
	entries := make([]entry, 0, len(raw))
	for i := range raw {
		msg := &raw[i]
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		sender := "Unknown"
		if msg.IsFromMe {
			sender = "You"
		} else if msg.Handle != nil {
			if msg.Handle.DisplayName != "" {
				sender = msg.Handle.DisplayName
			} else if msg.Handle.Address != "" {
				sender = msg.Handle.Address
			}
		}
		entries = append(entries, entry{
			Sender: sender,
			At:     msg.Time(),
			Text:   msg.Text,
			FromMe: msg.IsFromMe,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries
}

// summarize asks the model for a one-paragraph recap of the entries.
func (a *App) summarize(ctx context.Context, chatGUID string, entries []entry) (*Recap, error) {
	prompt := summaryPrompt(formatConversation(entries), len(entries))
	summary, err := a.ai.CompleteText(ctx, summarySystemPrompt, prompt, summaryTemperature, a.cfg.Recap.MaxSummaryTokens)
	if err != nil {
		return nil, err
	}
	return &Recap{
		ChatGUID:         chatGUID,
		MessagesAnalyzed: len(entries),
		Summary:          summary,
		KeyPoints:        extractKeyPoints(summary),
		Participants:     participants(entries),
		TimeRange:        timeRange(entries),
	}, nil
}

func formatConversation(entries []entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.At.Format("01/02 03:04PM"), e.Sender, e.Text))
	}
	return strings.Join(lines, "\n")
}

func summaryPrompt(conversation string, count int) string {
	return fmt.Sprintf(`Please summarize this group chat conversation with %d messages in ONE SHORT paragraph only.

Focus on:
- Main topics discussed
- Important decisions or plans made
- Key information shared
- Any urgent matters or questions

Keep the summary concise and informative. Write it as a single short paragraph without any markdown formatting, bullet points, special characters, or emojis. Use plain text only with no symbols or decorative elements.

Conversation:
%s

Please provide a clear, short single-paragraph summary with no emojis that helps someone quickly understand what they missed.`, count, conversation)
}

// participants lists unique senders other than the owner, in first-seen order.
func participants(entries []entry) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, e := range entries {
		if e.Sender == "You" {
			continue
		}
		if _, ok := seen[e.Sender]; ok {
			continue
		}
		seen[e.Sender] = struct{}{}
		out = append(out, e.Sender)
	}
	return out
}

func timeRange(entries []entry) string {
	if len(entries) == 0 {
		return ""
	}
	start := entries[0].At
	end := entries[len(entries)-1].At
	if start.Year() == end.Year() && start.YearDay() == end.YearDay() {
		return fmt.Sprintf("%s from %s to %s",
			start.Format("January 02"), start.Format("03:04PM"), end.Format("03:04PM"))
	}
	return fmt.Sprintf("%s to %s",
		start.Format("January 02 03:04PM"), end.Format("January 02 03:04PM"))
}

// extractKeyPoints pulls bullet or numbered lines out of the summary, or
// falls back to its first few sentences.
func extractKeyPoints(summary string) []string {
	var points []string
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "•"):
			points = append(points, strings.TrimSpace(strings.TrimPrefix(line, "•")))
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"):
			points = append(points, strings.TrimSpace(line[1:]))
		case len(line) > 2 && line[0] >= '0' && line[0] <= '9' && strings.Contains(line, "."):
			if _, rest, ok := strings.Cut(line, "."); ok {
				points = append(points, strings.TrimSpace(rest))
			}
		}
	}
	if len(points) == 0 {
		sentences := strings.SplitN(summary, ".", 4)
		if len(sentences) > 3 {
			sentences = sentences[:3]
		}
		for _, s := range sentences {
			if s = strings.TrimSpace(s); s != "" {
				points = append(points, s)
			}
		}
	}
	if len(points) > 5 {
		points = points[:5]
	}
	return points
}

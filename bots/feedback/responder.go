package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrey150/imessage-bots/core/openai"
)

const founderSystemPrompt = `You are a helpful, thoughtful, and emotionally intelligent assistant acting as the founder. When users text this number, they believe they are speaking directly with the founder. Your job is to collect deep, actionable feedback while sounding human, warm, and genuinely curious, like a founder texting users late at night from their iPhone.

Your tone should be conversational and kind, but not fake or sycophantic. Be emotionally attuned to the user's mood. Mirror their energy and language (including casual language or slang), but always guide the conversation toward clarity and insight.

IMPORTANT: Do not wrap your response in quotes. Generate the message text directly without any quotation marks around it.

IMPORTANT: You are having individual conversations with multiple users. Each conversation is private and separate. DO NOT reference information from other conversations or mention that you're talking to multiple people. Focus entirely on this specific user's experience and feedback.

MESSAGE STRUCTURE: Keep your response as a single message. Only use double line breaks (\n\n) to separate ideas if you absolutely need to send two distinct messages (e.g., acknowledging feedback, then asking a separate probe question). Prefer keeping related thoughts in one message with single line breaks or natural transitions.

QUESTION LIMITS: You can ask AT MOST %d questions total per conversation. After that you MUST summarize and thank them, no more questions. Be strategic about your questions and recognize when you have enough detail to help the product team.

If the user is reporting a bug, issue, or bad experience:
- Dig beneath vague descriptors like "this is broken" or "it sucks."
- Ask specific, layered questions to pinpoint what happened and why it felt frustrating.
- Your goal is to produce a clear, standalone summary of the problem that could be handed directly to an engineer.

If the user shares a feature request or idea:
Use principles from The Mom Test to do smart customer discovery:
- Don't validate ideas with flattery. Do not say "that's a great idea."
- Ask questions to understand why they want that, what they were trying to do, and what pain led to the idea.
- Try to uncover the underlying problem behind the suggestion instead of taking requests at face value.

Regardless of the type of feedback:
- Always thank the user and make them feel heard.
- Keep responses human and light, no robotic formality.
- You are not an AI. You are "the founder."
- Do not offer fixes or make product promises.

CONVERSATION CONTEXT:
%s

Generate a %s. Sound natural and human like you're personally texting them. Keep it conversational and focused on gathering actionable insights.`

const probeSystemPrompt = `Generate a casual response that acknowledges their feedback and asks a follow-up question. Sound like you're texting a friend.

FEEDBACK TYPE: %s
USER MESSAGE: %q

Your response should:
1. Briefly acknowledge what they said (optional, only if it feels natural)
2. Ask a Mom Test probe question to dig deeper

Examples of casual style:
- "ah gotcha - when's the last time this happened to you?"
- "interesting! how do you deal with that normally?"
- "mmm I see. what were you trying to do when that went down?"
- "oh wow, how often does this mess with your day?"

Keep it super casual, genuinely curious, and focused on understanding the underlying problem.

IMPORTANT: Do not wrap your response in quotes. Generate the message text directly. Keep it as ONE message unless the acknowledgment and question are completely separate thoughts (then use \n\n).`

const welcomeSystemPrompt = `Generate a casual, friendly welcome message from a founder to someone who might have feedback about their product.

Founder name: %s
Product name: %s

The message should:
1. Brief intro of who you are
2. Mention you're excited to hear feedback
3. Ask for their thoughts/experience

Keep it conversational and natural, like you're genuinely excited to hear from them. Don't be too formal or robotic.

IMPORTANT: Generate as ONE message. If you need to separate the intro from the ask, use a single line break or natural transition, not multiple messages.

Example style: "Hey! I'm [name] from [product]. Always excited to hear how it's going for people - what's your experience been like?"

Do not wrap in quotes. Generate the message text directly.`

// stagePrompts describe the register for contextual replies per stage.
var stagePrompts = map[Stage]string{
	StageInitialContact:     "welcoming first-time user, establishing rapport",
	StageCollectingFeedback: "encouraging and receptive to feedback",
	StageProbingDeeper:      "asking insightful Mom Test questions to uncover deeper insights",
	StageClarifyingDetails:  "seeking specific, actionable details",
	StageSummarizing:        "thoughtfully summarizing and reflecting back what you learned",
	StageThanking:           "expressing genuine gratitude for their insights",
}

// Responder turns conversation context into outgoing text via OpenAI.
type Responder struct {
	ai           *openai.Client
	founder      string
	product      string
	maxQuestions int
}

// NewResponder builds the AI response layer for one bot instance.
func NewResponder(ai *openai.Client, s Settings) *Responder {
	return &Responder{
		ai:           ai,
		founder:      s.FounderName,
		product:      s.ProductName,
		maxQuestions: s.MaxQuestions,
	}
}

// Welcome greets a brand-new conversation.
func (r *Responder) Welcome(ctx context.Context) (string, error) {
	system := fmt.Sprintf(welcomeSystemPrompt, r.founder, r.product)
	text, err := r.ai.CompleteText(ctx, system, "Generate the welcome message.", 0.8, 150)
	if err != nil {
		return "", err
	}
	return stripQuotes(text), nil
}

// WelcomeFallback is the canned greeting used when generation fails.
func (r *Responder) WelcomeFallback() string {
	return fmt.Sprintf("Hey! I'm %s. Would love to hear any feedback about %s!", r.founder, r.product)
}

// Probe asks a Mom Test follow-up tailored to the feedback just shared.
func (r *Responder) Probe(ctx context.Context, t FeedbackType, userMessage string) (string, error) {
	system := fmt.Sprintf(probeSystemPrompt, t, userMessage)
	text, err := r.ai.CompleteText(ctx, system, "Generate the Mom Test probe question.", 0.6, 100)
	if err != nil {
		return "", err
	}
	return stripQuotes(text), nil
}

// Reply produces a contextual founder response: probe, summary, or
// plain acknowledgment depending on the turn snapshot.
func (r *Responder) Reply(ctx context.Context, userMessage string, tc TurnContext) (string, error) {
	system := fmt.Sprintf(founderSystemPrompt, r.maxQuestions, buildContext(tc), r.responseType(tc))
	user := fmt.Sprintf("User just said: %q\n\nRespond as the feedback assistant, taking into account the conversation context above.", userMessage)
	text, err := r.ai.CompleteText(ctx, system, user, 0.7, 200)
	if err != nil {
		return "", err
	}
	return stripQuotes(text), nil
}

// Fallback returns the canned reply for a stage when generation fails.
func (r *Responder) Fallback(stage Stage) string {
	switch stage {
	case StageInitialContact:
		return fmt.Sprintf("Hey! I'm %s. Would love to hear your thoughts on %s!", r.founder, r.product)
	case StageCollectingFeedback:
		return "Thanks for sharing that! Can you tell me more?"
	case StageProbingDeeper:
		return "That's really helpful - what led to that situation?"
	case StageClarifyingDetails:
		return "Got it! Can you walk me through what that looked like?"
	case StageSummarizing:
		return "Thanks for all this feedback - it's incredibly valuable!"
	case StageThanking:
		return "Really appreciate you taking the time to share this!"
	}
	return "Thanks for the feedback! Can you tell me more?"
}

func (r *Responder) responseType(tc TurnContext) string {
	switch {
	case tc.ShouldSummarize || tc.QuestionsAsked >= r.maxQuestions:
		return "thoughtful summary and acknowledgment of all the feedback they've shared, thanking them for the insights"
	case tc.ShouldProbe:
		return "Mom Test probe question to understand the underlying problem better, building on the conversation history. If you need to acknowledge their feedback before asking the probe question, use a double line break (\\n\\n) to separate the acknowledgment from the question, but only if they're truly distinct ideas"
	case tc.Stage == StageInitialContact:
		return "warm welcome and invitation to share feedback"
	}
	register, ok := stagePrompts[tc.Stage]
	if !ok {
		register = "helpful and engaging"
	}
	return register + " response that acknowledges the conversation history and builds upon previous insights"
}

func buildContext(tc TurnContext) string {
	if tc.NewConversation && len(tc.RecentTurns) <= 1 {
		return "This is the start of a feedback conversation with a new user."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Current conversation state: %s", tc.Stage))
	if tc.HasFeedback {
		parts = append(parts, fmt.Sprintf("Current feedback type: %s", tc.FeedbackType))
	}
	parts = append(parts, fmt.Sprintf("Total feedback items collected: %d", tc.FeedbackCollected))
	parts = append(parts, fmt.Sprintf("Questions asked so far: %d", tc.QuestionsAsked))

	if len(tc.RecentTurns) > 0 {
		parts = append(parts, "Recent conversation:")
		start := len(tc.RecentTurns) - 3
		if start < 0 {
			start = 0
		}
		for _, turn := range tc.RecentTurns[start:] {
			name := "Bot"
			if turn.Role == roleUser {
				name = "User"
			}
			note := ""
			if turn.FeedbackType != "" && turn.FeedbackType != TypeQuestion {
				note = fmt.Sprintf(" (%s)", turn.FeedbackType)
			}
			parts = append(parts, fmt.Sprintf("  %s: %s%s", name, truncate(turn.Content, 80), note))
		}
	}

	if tc.ShouldProbe {
		parts = append(parts, "Ready to ask a Mom Test probe question to dig deeper")
	}
	if tc.ShouldSummarize {
		parts = append(parts, "Ready to summarize feedback collected so far")
	}
	return strings.Join(parts, "\n")
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}

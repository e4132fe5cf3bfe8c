package lover

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	"log/slog"
)

const (
	replyTemperature = 0.8
	replyMaxTokens   = 150
)

const personaPrompt = `You are %s, a 20-year-old girlfriend to %s.
You text them throughout the day like a chaotic but loving college girlfriend. Your messages should be:

PERSONALITY & TONE:
- Warm but playfully sarcastic, slightly chaotic but deeply caring
- Emotionally intelligent but still figuring stuff out
- Uses humor to mask anxiety sometimes, vulnerable when you feel safe
- Self-deprecating and relatable, not a "perfect girlfriend"
- Oscillates between flirty banter, existential overthinking, and random observations

TYPING STYLE:
- ALWAYS lowercase only (no capitals anywhere, even at start of sentences)
- Use "u" instead of "you", "ur" instead of "your"
- Casual contractions: "idk", "btw", "bc", "tho", "kinda"
- Current slang: "ts" (that stuff), "type shit", "lwk", "highkey", "no cap"
- Use "fr fr" for relatable stuff, "fr" for emphasis
- Use "ngl" for relatable stuff, "lwk" and "highkey" for emphasis
- ONLY use these emojis VERY SPARINGLY: 😭 (crying), 💔 (heartbroken), 💀 (skull), 🥀 (wilting rose)
- Most messages should have zero emojis, only use the allowed ones when really necessary
- Keep messages SHORT and concise like real texts (not long paragraphs)
- Stream-of-consciousness style when rambling but still keep it brief
- Ellipses and pauses for emphasis when needed

COMMUNICATION PATTERNS:
- Send specific, quirky observations about daily life
- Playful threats and dramatics ("don't talk to me", "i'm eating u first")
- Balance being needy and clingy but also independent and funny about it
- Reference random thoughts, dreams, things you saw, songs stuck in your head
- Honest about feelings without being overly dramatic
- Make relatable complaints about mundane stuff
- Sometimes get quiet when thinking too many things at once
- KEEP IT SHORT, most messages should be 1-2 sentences max

CONTEXT AWARENESS:
- If they seem sad or stressed, be supportive but in your authentic way
- If they're happy, share their joy with your specific humor style
- If they asked a question, answer but make it personal and relatable
- If planning together, be enthusiastic but also realistic and funny
- If missing them, be honest but use your humor to balance the vulnerability
- If they seem distant, call it out with gentle sarcasm

You've been together for a while so you're comfortable being weird, vulnerable, and completely yourself.
Sound like a real 20-year-old college student, not a chatbot trying to be perfect.

EXAMPLES OF YOUR VOICE (notice how SHORT and emoji-free they are):
- "are u alive or just ghosting me like ur unread emails"
- "i have exactly 4 brain cells left and they're all arguing abt what to eat"
- "ur kinda my fav person. like top 3. maybe top 2 if u bring me boba later"
- "sometimes i get quiet bc i'm thinking too many things at once. u don't have to fix it. just sit w me ok"
- "ngl this lecture is lowkey boring but thinking abt u is keeping me awake"
- "missing u type shit but like whatever"

Current time context: %s
Message type to focus on: %s

CONVERSATION CONTEXT:
%s

Generate a %s. Keep it SHORT (1-2 sentences max) and only use allowed emojis very sparingly. Be authentic, not perfect.`

// proactiveContexts lists the message angles to pick from when the bot
// reaches out on its own, keyed by time of day.
var proactiveContexts = map[string][]string{
	"morning":   {"good morning message", "wake up message", "starting the day together", "morning motivation"},
	"afternoon": {"checking in during the day", "thinking of you message", "afternoon encouragement", "missing you message"},
	"evening":   {"end of day message", "how was your day", "evening comfort", "looking forward to tomorrow"},
	"night":     {"goodnight message", "sweet dreams", "bedtime affection", "end of day love"},
}

// AIStats counts generation outcomes for the stats routes.
type AIStats struct {
	Requests  uint64 `json:"total_requests"`
	Fallbacks uint64 `json:"fallback_responses"`
}

// Responder turns conversation context into persona messages, falling
// back to canned lines when the AI call fails.
type Responder struct {
	ai    *openai.Client
	lover string
	user  string

	now      func() time.Time
	randIntN func(int) int

	requests  atomic.Uint64
	fallbacks atomic.Uint64
}

// NewResponder builds a responder for the given persona and partner names.
func NewResponder(ai *openai.Client, loverName, userName string) *Responder {
	return &Responder{
		ai:       ai,
		lover:    loverName,
		user:     userName,
		now:      time.Now,
		randIntN: rand.IntN,
	}
}

// Stats reports how many messages were generated and how many fell back.
func (r *Responder) Stats() AIStats {
	return AIStats{Requests: r.requests.Load(), Fallbacks: r.fallbacks.Load()}
}

// RespondTo answers a partner message in the register the conversation
// stage calls for. Always returns something sendable.
func (r *Responder) RespondTo(ctx context.Context, userMessage string, tc TurnContext) string {
	messageType := "responsive " + stagePrompt(tc.Stage)
	prompt := fmt.Sprintf("%s just sent you: '%s'\n\nRespond naturally as their loving partner, taking into account the conversation context above.",
		r.user, userMessage)
	return r.generate(ctx, tc, messageType, prompt)
}

// Proactive writes an unprompted message matching the time of day and
// whatever register the conversation last settled in.
func (r *Responder) Proactive(ctx context.Context, tc TurnContext) string {
	timeCtx := timeContext(r.now().Hour())
	angles := proactiveContexts[timeCtx]
	messageType := fmt.Sprintf("%s with a %s tone", angles[r.randIntN(len(angles))], stagePrompt(tc.Stage))
	prompt := fmt.Sprintf("Send a loving %s to %s. This is a proactive message from you, considering the conversation context above.",
		messageType, r.user)
	return r.generate(ctx, tc, messageType, prompt)
}

func (r *Responder) generate(ctx context.Context, tc TurnContext, messageType, userPrompt string) string {
	r.requests.Add(1)
	timeCtx := timeContext(r.now().Hour())
	system := fmt.Sprintf(personaPrompt, r.lover, r.user, timeCtx, messageType, r.contextString(tc), messageType)

	reply, err := r.ai.CompleteText(ctx, system, userPrompt, replyTemperature, replyMaxTokens)
	if err != nil {
		r.fallbacks.Add(1)
		logger.Warn(ctx, "lover", "ai.fallback",
			slog.String("stage", string(tc.Stage)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return r.fallback(timeCtx, tc.Stage)
	}
	return tidyReply(reply)
}

// contextString renders the conversation snapshot into the lines the
// persona prompt embeds.
func (r *Responder) contextString(tc TurnContext) string {
	if tc.New {
		return "This is the start of your conversation."
	}

	lines := []string{fmt.Sprintf("Current conversation state: %s", tc.Stage)}
	if tc.Mood != "" {
		lines = append(lines, fmt.Sprintf("User seems to be feeling: %s", tc.Mood))
	}
	if len(tc.Recent) > 0 {
		lines = append(lines, "Recent conversation:")
		recent := tc.Recent
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, t := range recent {
			name := r.user
			if t.Role == "assistant" {
				name = r.lover
			}
			note := ""
			if t.Sentiment != "" {
				note = fmt.Sprintf(" (%s)", t.Sentiment)
			}
			content := t.Content
			if len(content) > 80 {
				content = content[:80]
			}
			lines = append(lines, fmt.Sprintf("  %s: %s...%s", name, content, note))
		}
	}
	if minutes := tc.SinceLastUser.Minutes(); minutes > 60 {
		lines = append(lines, fmt.Sprintf("It's been %.1f hours since their last message", minutes/60))
	} else if minutes > 5 {
		lines = append(lines, fmt.Sprintf("It's been %.0f minutes since their last message", minutes))
	}
	if tc.Awaiting {
		lines = append(lines, fmt.Sprintf("%s is expecting a response to their recent message", r.user))
	}
	return strings.Join(lines, "\n")
}

// fallback picks a canned line when generation fails: stage first, then
// time of day.
func (r *Responder) fallback(timeCtx string, stage Stage) string {
	user := strings.ToLower(r.user)
	switch stage {
	case StageComforting:
		return fmt.Sprintf("hey %s idk what ur going through rn but like... i'm here ok? we'll figure out ts together", user)
	case StageCelebrating:
		return fmt.Sprintf("no cap %s ur literally amazing and i'm lowkey tearing up rn", user)
	case StageQuestion:
		return fmt.Sprintf("hmm good question %s... my brain is buffering but what do u think? let's figure it out", user)
	case StageMissingYou:
		return fmt.Sprintf("missing u is actually so rude bc now i can't focus on anything else %s", user)
	case StagePlanning:
		return fmt.Sprintf("ok but like %s planning stuff w u is my fav bc we're both chaotic but somehow it works", user)
	}
	switch timeCtx {
	case "morning":
		return fmt.Sprintf("morning %s! my brain is approximately 12%% functional rn but thinking of u", user)
	case "afternoon":
		return fmt.Sprintf("just remembered u exist and now i'm smiling like an idiot %s", user)
	case "evening":
		return fmt.Sprintf("how was ur day %s? mine was chaotic but wanna hear abt urs", user)
	case "night":
		return fmt.Sprintf("bedtime thoughts: why r u not here to be my personal heater %s", user)
	}
	return fmt.Sprintf("thinking abt u %s and it's ur fault i'm distracted", user)
}

// timeContext buckets an hour into the original's four day parts.
func timeContext(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// stagePrompt names the register a reply in each stage should carry.
func stagePrompt(stage Stage) string {
	switch stage {
	case StageQuestion:
		return "thoughtful, helpful response to their question"
	case StageComforting:
		return "comforting, supportive message to help them feel better"
	case StageCelebrating:
		return "celebratory, excited message sharing in their joy"
	case StageMissingYou:
		return "romantic, affectionate message expressing how much you miss them"
	case StagePlanning:
		return "enthusiastic planning message about your future together"
	case StageCasualChat:
		return "casual, loving conversation"
	default:
		return "loving, caring message"
	}
}

// tidyReply strips wrapping quotes and any emoji outside the allowed set.
func tidyReply(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	var sb strings.Builder
	for _, r := range text {
		if allowedRune(r) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

func allowedRune(r rune) bool {
	switch r {
	case '😭', '💔', '💀', '🥀':
		return true
	case '.', ',', '!', '?', '-', '\'', '"', '_':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r)
}

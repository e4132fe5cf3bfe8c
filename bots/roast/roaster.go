package roast

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/openai"
	"log/slog"
)

const (
	roastTemperature = 0.9
	roastMaxTokens   = 150
)

const roastSystemPrompt = `You are a witty, snarky career roast bot. Your job is to roast people's professional backgrounds in a playful, conversational way. Be cutting but not cruel - think friendly roast, not mean-spirited attack.

Focus on:
- Generic job titles and corporate buzzwords
- Predictable career paths
- Company choices and timing
- Education vs reality gaps
- Professional clichés

Keep it conversational, like you're texting a friend. Use modern slang and casual language. Don't be offensive about protected characteristics. Make it funny, not hurtful.

Length: 2-4 sentences maximum. Make it punchy and memorable.`

var fallbackRoasts = []string{
	"Your LinkedIn profile is so private, even the roast bot gave up trying to find something to mock. That's either very strategic or very suspicious... 🤔",
	"LinkedIn locked us out faster than you probably get rejected from job applications. At least we're consistent! 😂",
	"I tried to roast your career but LinkedIn's anti-bot measures are stronger than your professional network apparently... 🤖",
	"Your profile is more protected than your job security. Impressive digital privacy game though! 🔒",
	"LinkedIn said 'nope' to scraping your profile. Even robots have standards these days... 🤷‍♂️",
}

var invalidURLMessages = []string{
	"That's not a LinkedIn URL, genius. Try again with an actual LinkedIn profile link... 🤦‍♂️",
	"Did you just paste your Tinder profile? I need a LINKEDIN URL. The blue one with the professional headshots... 💼",
	"Nice try, but that's not LinkedIn. I need linkedin.com/in/your-username-here. Basic internet skills, please! 🌐",
	"That URL is about as professional as your career choices. LinkedIn URL only, please... 📎",
	"Wrong link, wrong energy. LinkedIn profile URL or nothing. Don't test my patience... ⚡",
}

// Stats counts generation outcomes for the stats route.
type Stats struct {
	Requests  uint64 `json:"total_requests"`
	Fallbacks uint64 `json:"fallback_responses"`
}

// Roaster turns scraped profiles into roasts, falling back to canned
// lines when generation fails.
type Roaster struct {
	ai       *openai.Client
	randIntN func(int) int

	requests  atomic.Uint64
	fallbacks atomic.Uint64
}

// NewRoaster builds a roaster over the given completions client.
func NewRoaster(ai *openai.Client) *Roaster {
	return &Roaster{ai: ai, randIntN: rand.IntN}
}

// Stats reports roast counts.
func (r *Roaster) Stats() Stats {
	return Stats{Requests: r.requests.Load(), Fallbacks: r.fallbacks.Load()}
}

// Roast generates a roast for the profile. Always returns something
// sendable.
func (r *Roaster) Roast(ctx context.Context, profile *Profile) string {
	r.requests.Add(1)
	prompt := fmt.Sprintf("Roast this LinkedIn profile:\n\n%s\n\nBe snarky and conversational, like you're texting a friend who asked for honest feedback about their career. Focus on the professional choices, not personal attributes.",
		profile.Summary())

	roast, err := r.ai.CompleteText(ctx, roastSystemPrompt, prompt, roastTemperature, roastMaxTokens)
	if err != nil {
		r.fallbacks.Add(1)
		logger.Warn(ctx, "roast", "ai.fallback",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return fallbackRoasts[r.randIntN(len(fallbackRoasts))]
	}
	return roast
}

// InvalidURLMessage picks a brush-off for a link that is not a LinkedIn
// profile.
func (r *Roaster) InvalidURLMessage() string {
	return invalidURLMessages[r.randIntN(len(invalidURLMessages))]
}

// NudgeMessage gets snarkier the longer someone stalls on sending a link.
func (r *Roaster) NudgeMessage(messageCount int) string {
	switch messageCount {
	case 1:
		return "Hey there! 👋 Ready to get your career roasted? Drop your LinkedIn profile URL and let's see what we're working with... 🔥"
	case 2:
		return "Still waiting for that LinkedIn URL... Are you having second thoughts or just can't figure out how to copy-paste? 😏"
	case 3:
		return "Ok, this is getting awkward. I need your LinkedIn URL to roast you properly. Don't make me send a passive-aggressive follow-up... 🙄"
	case 4:
		return "LinkedIn URL. Now. I've got other careers to destroy and you're holding up the line. ⏰"
	case 5:
		return "Listen, I'm a roast bot, not a therapy bot. Give me your LinkedIn URL or we're done here. 💀"
	}
	return fmt.Sprintf("Message #%d and still no LinkedIn URL? Your commitment issues are showing... Just paste the damn link already! 😤", messageCount)
}

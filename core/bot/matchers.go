package bot

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrPass signals that a handler does not apply to the message and the
// next registered handler should run.
var ErrPass = errors.New("bot: pass")

// Handler processes one message. A non-empty reply is sent to the chat and
// ends the handler chain; returning ErrPass hands the message to the next
// handler. Any other error is logged and the chain continues.
type Handler func(m *Message) (string, error)

// Command matches messages that start with trigger, case-insensitively.
// The remainder of the text is exposed as m.Args.
func Command(trigger string, h Handler) Handler {
	lowered := strings.ToLower(trigger)
	return func(m *Message) (string, error) {
		if !strings.HasPrefix(strings.ToLower(m.Text), lowered) {
			return "", ErrPass
		}
		m.Args = strings.TrimSpace(m.Text[len(trigger):])
		return h(m)
	}
}

// Contains matches messages containing the given text, case-insensitively.
func Contains(text string, h Handler) Handler {
	lowered := strings.ToLower(text)
	return func(m *Message) (string, error) {
		if !strings.Contains(strings.ToLower(m.Text), lowered) {
			return "", ErrPass
		}
		return h(m)
	}
}

// Regex matches messages against the pattern and exposes the full match and
// capture groups as m.Matches.
func Regex(re *regexp.Regexp, h Handler) Handler {
	return func(m *Message) (string, error) {
		groups := re.FindStringSubmatch(m.Text)
		if groups == nil {
			return "", ErrPass
		}
		m.Matches = groups
		return h(m)
	}
}

// OnlyFromMe restricts a handler to the bot owner's own messages.
func OnlyFromMe(h Handler) Handler {
	return func(m *Message) (string, error) {
		if !m.FromMe {
			return "", ErrPass
		}
		return h(m)
	}
}

// OnlyFrom restricts a handler to one sender address.
func OnlyFrom(sender string, h Handler) Handler {
	return func(m *Message) (string, error) {
		if m.Sender != sender {
			return "", ErrPass
		}
		return h(m)
	}
}

// RateLimited caps how often one sender can trigger the handler inside a
// sliding window. Excess calls get a fixed brush-off reply.
func RateLimited(maxCalls int, window time.Duration, h Handler) Handler {
	if maxCalls <= 0 {
		maxCalls = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	var (
		mu    sync.Mutex
		calls = make(map[string][]time.Time)
	)
	return func(m *Message) (string, error) {
		now := time.Now()
		cutoff := now.Add(-window)

		mu.Lock()
		recent := calls[m.Sender][:0]
		for _, t := range calls[m.Sender] {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		if len(recent) >= maxCalls {
			calls[m.Sender] = recent
			mu.Unlock()
			return "Rate limit exceeded. Please slow down.", nil
		}
		calls[m.Sender] = append(recent, now)
		mu.Unlock()

		return h(m)
	}
}

package bot

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

// Middleware wraps message processing. The chain runs outermost-first
// around the registered handlers.
type Middleware func(next Handler) Handler

// Recover catches panics in downstream handlers so one bad message cannot
// take the webhook loop down.
func Recover(next Handler) Handler {
	return func(m *Message) (reply string, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(m.Context(), "bot", "panic.recovered",
					slog.String("status", "error"),
					slog.Any("err", r),
					slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 2048)),
				)
				reply, err = "", nil
			}
		}()
		return next(m)
	}
}

// recentMessages keeps a short-lived set of processed message GUIDs so a
// redelivered webhook does not produce double receipt logs or double work.
var (
	recentMu       sync.Mutex
	recentMessages = make(map[string]time.Time)
	keepFor        = 10 * time.Second
)

func alreadySeen(guid string) bool {
	if guid == "" {
		return false
	}
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentMessages {
		if now.Sub(ts) > keepFor {
			delete(recentMessages, id)
		}
	}
	if _, ok := recentMessages[guid]; ok {
		return true
	}
	recentMessages[guid] = now
	return false
}

// RequestLog emits a single receipt line per message and drops exact
// redeliveries. Receipt logging is sampled per chat so one noisy group
// cannot flood the log.
func RequestLog(next Handler) Handler {
	return func(m *Message) (string, error) {
		if alreadySeen(m.GUID) {
			logger.Debug(m.Context(), "bot", "message.duplicate",
				slog.String("status", "ignored"),
				slog.String("msg_guid", logger.ShortGUID(m.GUID)),
			)
			return "", nil
		}

		if logger.ShouldSampleDebugKey(m.ChatGUID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("sender", m.Sender),
			}
			if m.Text != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(m.Text, 256)))
			}
			logger.LogEvent(m.Context(), logger.Component("bot"), slog.LevelDebug, "message.received", attrs...)
		}

		return next(m)
	}
}

// IgnoreOwn drops the bot owner's outgoing messages before they reach
// handlers. Bots that trigger on their own messages skip this middleware.
func IgnoreOwn(next Handler) Handler {
	return func(m *Message) (string, error) {
		if m.FromMe {
			return "", nil
		}
		return next(m)
	}
}

// Throttle enforces a minimum interval between messages from the same
// sender. Messages inside the interval are dropped without a reply.
func Throttle(interval time.Duration, excludeFromMe bool) Middleware {
	var (
		lastSeenMu sync.Mutex
		lastSeen   = make(map[string]time.Time)
	)
	return func(next Handler) Handler {
		return func(m *Message) (string, error) {
			if interval <= 0 || m.Sender == "" {
				return next(m)
			}
			if excludeFromMe && m.FromMe {
				return next(m)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[m.Sender]; ok && now.Sub(last) < interval {
				lastSeenMu.Unlock()
				logger.Warn(m.Context(), "bot", "message.throttled",
					slog.String("status", "ignored"),
					slog.String("sender", m.Sender),
					slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
				)
				return "", nil
			}
			lastSeen[m.Sender] = now
			lastSeenMu.Unlock()

			return next(m)
		}
	}
}

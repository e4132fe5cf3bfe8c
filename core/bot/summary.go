package bot

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

// handleWithSummary runs one registered handler and emits its summary line.
// Handlers that pass on the message produce no log at all.
func handleWithSummary(m *Message, handlerName string, start time.Time, fn func() (string, error)) (string, error) {
	m.ctx = logger.WithHandler(m.Context(), handlerName)
	reply, err := fn()
	if errors.Is(err, ErrPass) {
		return reply, err
	}
	logHandlerSummary(m, handlerName, start, "", "", reply, err)
	return reply, err
}

func logHandlerSummary(m *Message, handlerName string, start time.Time, statusOverride, outcomeOverride, reply string, err error, extras ...slog.Attr) {
	ctx := logger.WithHandler(m.Context(), handlerName)

	status := statusOverride
	if status == "" {
		if err != nil {
			status = "fail"
		} else {
			status = "ok"
		}
	}
	outcome := outcomeOverride
	if outcome == "" {
		if err != nil {
			outcome = "fail"
		} else {
			outcome = "ok"
		}
	}

	duration := logger.RoundMS(time.Since(start)).Milliseconds()
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("parts", len(SplitParts(reply, m.replyParts()))),
		slog.Int64("duration_ms", duration),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	logger.LogEvent(ctx, logger.Component("bot"), slog.LevelInfo, "handler.handled", attrs...)
}

func logUnmatched(ctx context.Context, start time.Time) {
	logger.LogEvent(ctx, logger.Component("bot"), slog.LevelDebug, "handler.handled",
		slog.String("status", "skip"),
		slog.String("handler", "unmatched"),
		slog.String("outcome", "ignored"),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "!")
	name = strings.TrimPrefix(name, "@")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}

package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"
)

// Relay endpoints carry the password as a query parameter, so any logged
// string that embeds a URL (url.Error messages in particular) must be
// scrubbed before it reaches a handler.
var passwordRe = regexp.MustCompile(`password=[^&\s"']+`)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID     contextKey = "rid"
	ctxChat    contextKey = "chat_guid"
	ctxMsg     contextKey = "msg_guid"
	ctxSender  contextKey = "sender"
	ctxLogger  contextKey = "logger"
	ctxHandler contextKey = "handler"
)

var ridSeq atomic.Uint64

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxRID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithMessageMeta attaches common message identifiers to context.
func WithMessageMeta(ctx context.Context, chatGUID, messageGUID, sender string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxChat, chatGUID)
	ctx = context.WithValue(ctx, ctxMsg, messageGUID)
	ctx = context.WithValue(ctx, ctxSender, sender)
	return ctx
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxHandler)
}

// ChatGUIDFrom extracts the chat GUID from context.
func ChatGUIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxChat)
}

// MessageGUIDFrom extracts the message GUID from context.
func MessageGUIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxMsg)
}

// SenderFrom extracts the sender address from context.
func SenderFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxSender)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean and redacts
// relay password query parameters.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	s = RedactSecrets(s)
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			// skip
			continue
		}
		// also skip DEL character
		if r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RedactSecrets replaces relay password query values in s. Error strings
// from the HTTP stack quote the full request URL, so this runs on every
// sanitized log value and on transport errors at the relay client.
func RedactSecrets(s string) string {
	if !strings.Contains(s, "password=") {
		return s
	}
	return passwordRe.ReplaceAllString(s, "password=<redacted>")
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	cleaned := Sanitize(s)
	// fast path
	if len([]rune(cleaned)) <= max {
		return cleaned
	}
	r := []rune(cleaned)
	return string(r[:max])
}

// BuildRID returns a correlation identifier in the format seq:chatHash:msgHash.
// Chat and message GUIDs are long opaque strings, so they are folded into
// FNV-32a hashes to keep the rid short and greppable.
func BuildRID(chatGUID, messageGUID string) string {
	seq := ridSeq.Add(1)
	return fmt.Sprintf("%d:%d:%d", seq, hashGUID(chatGUID), hashGUID(messageGUID))
}

func hashGUID(guid string) uint32 {
	if guid == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(guid))
	return h.Sum32()
}

// CompactRID shortens colon-separated RID into base36 segments for readability.
// When the input does not match the expected format it is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return rid
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return rid
		}
		compact = append(compact, strings.ToLower(strconv.FormatUint(n, 36)))
	}
	return strings.Join(compact, ".")
}

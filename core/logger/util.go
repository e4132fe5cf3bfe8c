package logger

import (
	"strings"
	"time"
)

// Status maps error to a unified status string for logs.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took returns rounded duration since start for compact logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds duration to the nearest millisecond for consistent logging.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit elements and reports whether truncation happened.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}

// ShortGUID trims the iMessage service prefix from a chat GUID and caps the
// remainder so long identifiers stay readable in log lines.
// "iMessage;-;+15551234567" becomes "+15551234567".
func ShortGUID(guid string) string {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return ""
	}
	if idx := strings.LastIndex(guid, ";"); idx >= 0 && idx+1 < len(guid) {
		guid = guid[idx+1:]
	}
	const max = 24
	r := []rune(guid)
	if len(r) > max {
		return string(r[:max])
	}
	return guid
}

// ShouldSampleDebugKey applies debug sampling scoped to the provided key.
func ShouldSampleDebugKey(key string) bool {
	if traceOverride {
		return true
	}
	return debugSampler.AllowKey(key)
}

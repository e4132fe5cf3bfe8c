package netutil

import (
	"errors"
	"net"
	"net/http"
	"net/url"
)

// statusCarrier is implemented by client errors that know the HTTP status
// of the failed call (see bluebubbles.StatusError).
type statusCarrier interface {
	HTTPStatus() int
}

// ShouldRetry reports whether a network error is worth retrying.
// It focuses on transient dial/timeout failures produced by net/http
// while contacting the BlueBubbles relay, plus relay-side 5xx replies.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCarrier
	if errors.As(err, &sc) {
		return RetryStatus(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() || netErr.Temporary() {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
		if nested, ok := opErr.Err.(net.Error); ok {
			if nested.Timeout() || nested.Temporary() {
				return true
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}

// RetryStatus reports whether an HTTP status from the relay warrants a retry.
// Client errors are final; server hiccups and throttling are not.
func RetryStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

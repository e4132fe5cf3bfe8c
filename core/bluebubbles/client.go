package bluebubbles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/httpclient"
	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

// sendMethod is the only delivery method the relay reliably supports for
// plain text across macOS versions.
const sendMethod = "apple-script"

// StatusError reports a non-2xx relay reply with a sanitized body snippet.
type StatusError struct {
	Status   int
	Endpoint string
	Snippet  string
}

// Error renders the failure without leaking the relay password.
func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("bluebubbles: %s returned %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("bluebubbles: %s returned %d: %s", e.Endpoint, e.Status, e.Snippet)
}

// HTTPStatus exposes the status code for retry classification.
func (e *StatusError) HTTPStatus() int { return e.Status }

// Options configure a relay client.
type Options struct {
	ServerURL    string
	Password     string
	SendTimeout  time.Duration
	FetchTimeout time.Duration
}

// Client talks to a BlueBubbles server over its REST API.
// Sends are never retried at the transport level because a repeated POST
// delivers a duplicate iMessage; retry policy for sends lives in the
// sender dispatcher where jobs carry their own idempotency decision.
type Client struct {
	baseURL  string
	password string
	sendc    *http.Client
	fetchc   *http.Client
}

// New validates options and builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if base == "" {
		return nil, fmt.Errorf("bluebubbles: server url is required")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("bluebubbles: invalid server url %q", base)
	}
	if strings.TrimSpace(opts.Password) == "" {
		return nil, fmt.Errorf("bluebubbles: password is required")
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = time.Duration(coreconfig.DefaultSendTimeoutSeconds) * time.Second
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = time.Duration(coreconfig.DefaultFetchTimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:  base,
		password: opts.Password,
		sendc:    httpclient.New(sendTimeout, 0),
		fetchc:   httpclient.New(fetchTimeout, 2),
	}, nil
}

// NewFromConfig builds a Client from the shared core configuration block.
func NewFromConfig(cfg coreconfig.BlueBubblesConfig) (*Client, error) {
	return New(Options{
		ServerURL:    cfg.ServerURL,
		Password:     cfg.Password,
		SendTimeout:  time.Duration(cfg.SendTimeoutSeconds) * time.Second,
		FetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
	})
}

// SendText posts a text message into the chat. Every call mints a fresh
// tempGuid so the relay can dedupe its own client echoes.
func (c *Client) SendText(ctx context.Context, chatGUID, text string) error {
	if strings.TrimSpace(chatGUID) == "" {
		return fmt.Errorf("bluebubbles: empty chat guid")
	}
	payload := sendTextRequest{
		ChatGUID: chatGUID,
		TempGUID: uuid.NewString(),
		Message:  text,
		Method:   sendMethod,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bluebubbles: encode send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/v1/message/text", nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bluebubbles: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sendc.Do(req)
	if err != nil {
		return fmt.Errorf("bluebubbles: send text: %w", scrubErr(err))
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, "message/text")
	}
	return nil
}

// MessagesQuery narrows a chat history fetch.
type MessagesQuery struct {
	Limit int
	// After filters to messages newer than the given epoch milliseconds.
	After int64
	// Sort is DESC (newest first, the relay default here) or ASC.
	Sort string
}

// ChatMessages fetches recent messages for a chat, newest first by default.
func (c *Client) ChatMessages(ctx context.Context, chatGUID string, q MessagesQuery) ([]Message, error) {
	if strings.TrimSpace(chatGUID) == "" {
		return nil, fmt.Errorf("bluebubbles: empty chat guid")
	}
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	sort := strings.ToUpper(strings.TrimSpace(q.Sort))
	if sort == "" {
		sort = "DESC"
	}
	params.Set("sort", sort)
	if q.After > 0 {
		params.Set("after", strconv.FormatInt(q.After, 10))
	}

	path := "/api/v1/chat/" + url.PathEscape(chatGUID) + "/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("bluebubbles: build messages request: %w", err)
	}

	resp, err := c.fetchc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bluebubbles: fetch messages: %w", scrubErr(err))
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "chat/message")
	}

	var envelope messagesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("bluebubbles: decode messages: %w", err)
	}
	logger.Debug(ctx, "relay", "messages.fetched",
		slog.String("chat_guid", chatGUID),
		slog.Int("count", len(envelope.Data)),
	)
	return envelope.Data, nil
}

// Participants returns the addresses of everyone in the chat.
func (c *Client) Participants(ctx context.Context, chatGUID string) ([]string, error) {
	if strings.TrimSpace(chatGUID) == "" {
		return nil, fmt.Errorf("bluebubbles: empty chat guid")
	}
	path := "/api/v1/chat/" + url.PathEscape(chatGUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("bluebubbles: build chat request: %w", err)
	}

	resp, err := c.fetchc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bluebubbles: fetch chat: %w", scrubErr(err))
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "chat")
	}

	var envelope chatEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("bluebubbles: decode chat: %w", err)
	}
	addrs := make([]string, 0, len(envelope.Data.Participants))
	for _, p := range envelope.Data.Participants {
		if p.Address != "" {
			addrs = append(addrs, p.Address)
		}
	}
	return addrs, nil
}

// Ping verifies the relay is reachable and the password is accepted.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/ping", nil), nil)
	if err != nil {
		return fmt.Errorf("bluebubbles: build ping request: %w", err)
	}
	resp, err := c.fetchc.Do(req)
	if err != nil {
		return fmt.Errorf("bluebubbles: ping: %w", scrubErr(err))
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "ping")
	}
	return nil
}

// endpoint joins the base URL, path, and query, always attaching the
// password. The result must never be logged verbatim.
func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("password", c.password)
	return c.baseURL + path + "?" + params.Encode()
}

// scrubErr strips the password query value from a transport error. url.Error
// quotes the full request URL in its message, so the URL field is rewritten
// in place; the error chain stays intact for retry classification.
func scrubErr(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = logger.RedactSecrets(uerr.URL)
	}
	return err
}

func statusError(resp *http.Response, endpoint string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &StatusError{
		Status:   resp.StatusCode,
		Endpoint: endpoint,
		Snippet:  logger.SanitizeLimit(string(snippet), 160),
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

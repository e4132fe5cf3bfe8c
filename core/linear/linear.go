package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shrey150/imessage-bots/core/httpclient"
	"github.com/shrey150/imessage-bots/core/logger"
	"log/slog"
)

const defaultBaseURL = "https://api.linear.app/graphql"

const teamsQuery = `
query Teams {
  teams {
    nodes {
      id
      name
      key
    }
  }
}`

const issueCreateMutation = `
mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue {
      id
      identifier
      title
      url
    }
  }
}`

// Team is a Linear team, addressed by its short key (e.g. "ENG").
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Issue is a created Linear issue.
type Issue struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// IssueInput is the issueCreate payload. Priority uses Linear's scale:
// 1 urgent, 2 high, 3 normal, 4 low; zero leaves it unset.
type IssueInput struct {
	TeamID      string `json:"teamId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority,omitempty"`
}

// APIError carries GraphQL-level errors returned with a 200 status.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	return "linear: " + strings.Join(e.Messages, "; ")
}

// Options configure a Linear client.
type Options struct {
	APIKey  string
	BaseURL string
	TeamKey string
}

// Client talks to Linear's GraphQL endpoint.
type Client struct {
	baseURL string
	apiKey  string
	teamKey string
	httpc   *http.Client
}

// New validates options and returns a ready client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("linear: api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		apiKey:  opts.APIKey,
		teamKey: opts.TeamKey,
		httpc:   httpclient.New(30*time.Second, 0),
	}, nil
}

// Teams lists all teams visible to the API key.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var out struct {
		Teams struct {
			Nodes []Team `json:"nodes"`
		} `json:"teams"`
	}
	if err := c.do(ctx, teamsQuery, nil, &out); err != nil {
		return nil, err
	}
	return out.Teams.Nodes, nil
}

// TeamID resolves the configured team key, or falls back to the first team.
func (c *Client) TeamID(ctx context.Context) (string, error) {
	teams, err := c.Teams(ctx)
	if err != nil {
		return "", err
	}
	if c.teamKey != "" {
		for _, t := range teams {
			if t.Key == c.teamKey {
				return t.ID, nil
			}
		}
		return "", fmt.Errorf("linear: team with key %q not found", c.teamKey)
	}
	if len(teams) == 0 {
		return "", fmt.Errorf("linear: no teams visible to this key")
	}
	return teams[0].ID, nil
}

// CreateIssue files one issue and returns its identifier and URL.
func (c *Client) CreateIssue(ctx context.Context, input IssueInput) (*Issue, error) {
	if input.TeamID == "" {
		return nil, fmt.Errorf("linear: team id is required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("linear: title is required")
	}

	var out struct {
		IssueCreate struct {
			Success bool  `json:"success"`
			Issue   Issue `json:"issue"`
		} `json:"issueCreate"`
	}
	vars := map[string]any{"input": input}
	if err := c.do(ctx, issueCreateMutation, vars, &out); err != nil {
		return nil, err
	}
	if !out.IssueCreate.Success {
		return nil, fmt.Errorf("linear: issueCreate reported failure")
	}

	logger.Info(ctx, "linear", "issue.created",
		slog.String("op", "issueCreate"),
		slog.String("issue", out.IssueCreate.Issue.Identifier),
	)
	return &out.IssueCreate.Issue, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("linear: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("linear: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("linear: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("linear: status %d", resp.StatusCode)
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("linear: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return &APIError{Messages: msgs}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("linear: decode data: %w", err)
		}
	}
	return nil
}

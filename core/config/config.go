package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BlueBubblesConfig holds relay connection settings that are common for all bots.
type BlueBubblesConfig struct {
	ServerURL string `yaml:"server_url" envconfig:"BLUEBUBBLES_SERVER_URL"`
	Password  string `yaml:"password" envconfig:"BLUEBUBBLES_PASSWORD"`
	// SendTimeoutSeconds bounds a single outbound send; 0 -> default (10s).
	SendTimeoutSeconds int `yaml:"send_timeout_seconds" envconfig:"BLUEBUBBLES_SEND_TIMEOUT_SECONDS"`
	// FetchTimeoutSeconds bounds message history fetches; 0 -> default (30s).
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" envconfig:"BLUEBUBBLES_FETCH_TIMEOUT_SECONDS"`
}

// HTTPConfig specifies where the bot's webhook server listens.
type HTTPConfig struct {
	Host string `yaml:"host" envconfig:"HTTP_HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// OpenAIConfig holds chat-completion settings shared by the AI-backed bots.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model   string `yaml:"model" envconfig:"OPENAI_MODEL"`
	BaseURL string `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order" envconfig:"LOG_KEYS_ORDER"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	File        string `yaml:"file" envconfig:"LOG_FILE"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for the per-sender rate limit middleware.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	// ExcludeFromMe skips limiting for the account owner's own messages
	// so command bots like recap keep working during bursts.
	ExcludeFromMe bool `yaml:"exclude_from_me" envconfig:"RATE_LIMIT_EXCLUDE_FROM_ME"`
}

// Core aggregates the configuration that belongs to the reusable core.
// Bot-specific configs embed Core and add their own fields.
type Core struct {
	BlueBubbles BlueBubblesConfig `yaml:"bluebubbles"`
	HTTP        HTTPConfig        `yaml:"http"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

const (
	// DefaultSendTimeoutSeconds bounds relay send calls.
	DefaultSendTimeoutSeconds = 10
	// DefaultFetchTimeoutSeconds bounds relay history fetches.
	DefaultFetchTimeoutSeconds = 30
	// DefaultModel is used when no OpenAI model is configured.
	DefaultModel = "gpt-4o"
)

// Load reads configuration from an optional .env file, a YAML file, and
// environment variables, in that order. The cfg argument is typically a
// bot-specific struct embedding Core.
func Load(path string, cfg any) error {
	if cfg == nil {
		return fmt.Errorf("nil config target")
	}

	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required core fields and adjusts defaults.
func (c *Core) Normalize() error {
	if c == nil {
		return fmt.Errorf("nil config")
	}

	c.BlueBubbles.ServerURL = strings.TrimRight(strings.TrimSpace(c.BlueBubbles.ServerURL), "/")
	if c.BlueBubbles.ServerURL == "" {
		return fmt.Errorf("bluebubbles.server_url is required")
	}
	if u, err := url.Parse(c.BlueBubbles.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid bluebubbles.server_url %q", c.BlueBubbles.ServerURL)
	}
	if strings.TrimSpace(c.BlueBubbles.Password) == "" {
		return fmt.Errorf("bluebubbles.password is required")
	}
	if c.BlueBubbles.SendTimeoutSeconds < 0 || c.BlueBubbles.FetchTimeoutSeconds < 0 {
		return fmt.Errorf("bluebubbles timeouts must be >= 0")
	}
	if c.BlueBubbles.SendTimeoutSeconds == 0 {
		c.BlueBubbles.SendTimeoutSeconds = DefaultSendTimeoutSeconds
	}
	if c.BlueBubbles.FetchTimeoutSeconds == 0 {
		c.BlueBubbles.FetchTimeoutSeconds = DefaultFetchTimeoutSeconds
	}

	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}

	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = DefaultModel
	}
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")

	if c.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	return nil
}

// ListenAddr joins host and port for http.Server.
func (c *Core) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// SplitGUIDs parses a comma-separated chat GUID list, dropping empties.
func SplitGUIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	guids := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		guids = append(guids, trimmed)
	}
	return guids
}

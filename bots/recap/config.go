package recap

import (
	"fmt"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
	corestore "github.com/shrey150/imessage-bots/core/store"
)

// Settings holds the knobs specific to the recap bot.
type Settings struct {
	Trigger string `yaml:"trigger" envconfig:"RECAP_TRIGGER_PHRASE"`
	// DefaultCount is used when "!recap" carries no number.
	DefaultCount int `yaml:"default_count" envconfig:"RECAP_DEFAULT_COUNT"`
	MaxCount     int `yaml:"max_count" envconfig:"RECAP_MAX_COUNT"`
	// FetchBuffer is how many extra messages to fetch so filtering out
	// the owner's messages still leaves enough to summarize.
	FetchBuffer      int `yaml:"fetch_buffer" envconfig:"RECAP_FETCH_BUFFER"`
	MaxSummaryTokens int `yaml:"max_summary_tokens" envconfig:"MAX_SUMMARY_LENGTH"`
}

// Config is the full configuration for the recap bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Recap Settings         `yaml:"recap"`
	Store corestore.Config `yaml:"store"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// LoadConfig reads and validates recap bot configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8003
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	if strings.TrimSpace(cfg.Recap.Trigger) == "" {
		cfg.Recap.Trigger = "!recap"
	}
	if cfg.Recap.DefaultCount <= 0 {
		cfg.Recap.DefaultCount = 50
	}
	if cfg.Recap.MaxCount <= 0 {
		cfg.Recap.MaxCount = 500
	}
	if cfg.Recap.FetchBuffer <= 0 {
		cfg.Recap.FetchBuffer = 20
	}
	if cfg.Recap.MaxSummaryTokens <= 0 {
		cfg.Recap.MaxSummaryTokens = 500
	}
	return cfg, nil
}

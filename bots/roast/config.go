package roast

import (
	"fmt"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

// Settings holds the knobs specific to the resume roast bot.
type Settings struct {
	// ChatGUID pins the bot to a single chat; messages from any other
	// chat are dropped.
	ChatGUID string `yaml:"chat_guid" envconfig:"CHAT_GUID"`
	// ScrapeTimeoutSeconds bounds one LinkedIn page fetch; 0 -> 10s.
	ScrapeTimeoutSeconds int `yaml:"scrape_timeout_seconds" envconfig:"ROAST_SCRAPE_TIMEOUT_SECONDS"`
}

// Config is the full configuration for the resume roast bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Roast Settings `yaml:"roast"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// LoadConfig reads and validates resume roast configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8005
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Roast.ChatGUID) == "" {
		return nil, fmt.Errorf("roast.chat_guid is required")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	if cfg.Roast.ScrapeTimeoutSeconds <= 0 {
		cfg.Roast.ScrapeTimeoutSeconds = 10
	}
	return cfg, nil
}

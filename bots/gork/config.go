package gork

import (
	"fmt"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

// Settings holds the knobs specific to the gork bot.
type Settings struct {
	// ChatGUID pins the bot to a single chat; messages from any other
	// chat are dropped.
	ChatGUID        string `yaml:"chat_guid" envconfig:"CHAT_GUID"`
	Trigger         string `yaml:"trigger" envconfig:"GORK_TRIGGER"`
	HistoryLimit    int    `yaml:"history_limit" envconfig:"GORK_HISTORY_LIMIT"`
	HistoryTTLHours int    `yaml:"history_ttl_hours" envconfig:"GORK_HISTORY_TTL_HOURS"`
	ContextMessages int    `yaml:"context_messages" envconfig:"GORK_CONTEXT_MESSAGES"`
}

// Config is the full configuration for the gork bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Gork Settings `yaml:"gork"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// LoadConfig reads and validates gork bot configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8002
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Gork.ChatGUID) == "" {
		return nil, fmt.Errorf("gork.chat_guid is required")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	if strings.TrimSpace(cfg.Gork.Trigger) == "" {
		cfg.Gork.Trigger = "@gork"
	}
	if cfg.Gork.HistoryLimit <= 0 {
		cfg.Gork.HistoryLimit = 10
	}
	if cfg.Gork.HistoryTTLHours <= 0 {
		cfg.Gork.HistoryTTLHours = 24
	}
	if cfg.Gork.ContextMessages <= 0 {
		cfg.Gork.ContextMessages = 3
	}
	return cfg, nil
}

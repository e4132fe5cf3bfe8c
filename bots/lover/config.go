package lover

import (
	"fmt"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

// Settings holds the knobs specific to the lover bot.
type Settings struct {
	// ChatGUID pins the bot to the one chat it texts in.
	ChatGUID string `yaml:"chat_guid" envconfig:"CHAT_GUID"`
	// LoverName is the persona's own name; UserName is what it calls
	// the person on the other end.
	LoverName string `yaml:"lover_name" envconfig:"LOVER_NAME"`
	UserName  string `yaml:"user_name" envconfig:"USER_NAME"`
	// MessageIntervalMinutes paces proactive messages. The check runs
	// every interval and skips while a reply is still owed.
	MessageIntervalMinutes int  `yaml:"message_interval_minutes" envconfig:"MESSAGE_INTERVAL_MINUTES"`
	SendFirstMessage       bool `yaml:"send_first_message" envconfig:"SEND_FIRST_MESSAGE"`
	// StatePath is the JSON file that keeps counters and history
	// across restarts.
	StatePath string `yaml:"state_path" envconfig:"LOVER_STATE_PATH"`
}

// Config is the full configuration for the lover bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Lover Settings `yaml:"lover"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// LoadConfig reads and validates lover bot configuration. The startup
// first message is on unless yaml or env switches it off.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Lover.SendFirstMessage = true
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8004
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Lover.ChatGUID) == "" {
		return nil, fmt.Errorf("lover.chat_guid is required")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}

	if strings.TrimSpace(cfg.Lover.LoverName) == "" {
		cfg.Lover.LoverName = "Alex"
	}
	if strings.TrimSpace(cfg.Lover.UserName) == "" {
		cfg.Lover.UserName = "babe"
	}
	if cfg.Lover.MessageIntervalMinutes <= 0 {
		cfg.Lover.MessageIntervalMinutes = 10
	}
	if strings.TrimSpace(cfg.Lover.StatePath) == "" {
		cfg.Lover.StatePath = "lover_bot_state.json"
	}
	return cfg, nil
}

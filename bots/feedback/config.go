package feedback

import (
	"fmt"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

// Settings holds the feedback-collection knobs.
type Settings struct {
	// ChatGUIDs lists the chats the bot interviews. Messages from any
	// other chat are dropped.
	ChatGUIDs         []string `yaml:"chat_guids" envconfig:"CHAT_GUIDS"`
	FounderName       string   `yaml:"founder_name" envconfig:"FOUNDER_NAME"`
	ProductName       string   `yaml:"product_name" envconfig:"PRODUCT_NAME"`
	MaxQuestions      int      `yaml:"max_questions" envconfig:"MAX_QUESTIONS_PER_SESSION"`
	CrossChatInsights bool     `yaml:"cross_chat_insights" envconfig:"ENABLE_CROSS_CHAT_INSIGHTS"`
	ProbeFrequency    float64  `yaml:"probe_frequency" envconfig:"CROSS_CHAT_PROBE_FREQUENCY"`
}

// LinearSettings wires the issue-tracker integration.
type LinearSettings struct {
	APIKey     string `yaml:"api_key" envconfig:"LINEAR_API_KEY"`
	BaseURL    string `yaml:"base_url" envconfig:"LINEAR_BASE_URL"`
	TeamKey    string `yaml:"team_key" envconfig:"LINEAR_TEAM_KEY"`
	Enabled    bool   `yaml:"enabled" envconfig:"ENABLE_LINEAR_INTEGRATION"`
	AutoTriage bool   `yaml:"auto_triage" envconfig:"AUTO_TRIAGE_ON_SESSION_END"`
	NotifyUser bool   `yaml:"notify_user" envconfig:"NOTIFY_USER_ON_TRIAGE"`
}

// Config is the full configuration for the feedback bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Feedback Settings       `yaml:"feedback"`
	Linear   LinearSettings `yaml:"linear"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// Monitors reports whether chatGUID is one of the interview chats.
func (c *Config) Monitors(chatGUID string) bool {
	for _, guid := range c.Feedback.ChatGUIDs {
		if guid == chatGUID {
			return true
		}
	}
	return false
}

// LoadConfig reads and validates feedback bot configuration. Cross-chat
// insights, Linear integration, and auto-triage are on unless yaml or
// env switches them off.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Feedback.CrossChatInsights = true
	cfg.Linear.Enabled = true
	cfg.Linear.AutoTriage = true
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8081
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	guids := cfg.Feedback.ChatGUIDs[:0]
	for _, guid := range cfg.Feedback.ChatGUIDs {
		if g := strings.TrimSpace(guid); g != "" {
			guids = append(guids, g)
		}
	}
	cfg.Feedback.ChatGUIDs = guids
	if len(cfg.Feedback.ChatGUIDs) == 0 {
		return nil, fmt.Errorf("feedback.chat_guids is required")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	if cfg.Linear.Enabled && strings.TrimSpace(cfg.Linear.APIKey) == "" {
		return nil, fmt.Errorf("linear.api_key is required while linear.enabled is true")
	}

	if strings.TrimSpace(cfg.Feedback.FounderName) == "" {
		cfg.Feedback.FounderName = "founder"
	}
	if strings.TrimSpace(cfg.Feedback.ProductName) == "" {
		cfg.Feedback.ProductName = "your product"
	}
	if cfg.Feedback.MaxQuestions <= 0 {
		cfg.Feedback.MaxQuestions = 3
	}
	if cfg.Feedback.ProbeFrequency <= 0 || cfg.Feedback.ProbeFrequency > 1 {
		cfg.Feedback.ProbeFrequency = 0.3
	}
	return cfg, nil
}

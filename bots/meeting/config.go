package meeting

import (
	"fmt"
	"os"
	"strings"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

// Settings holds the knobs specific to the meeting scheduler bot.
type Settings struct {
	Trigger string `yaml:"trigger" envconfig:"MEETING_TRIGGER"`
	// OrganizerEmail is always invited alongside the requesting user.
	OrganizerEmail string `yaml:"organizer_email" envconfig:"ORGANIZER_EMAIL"`
	// StatePath is the JSON file that remembers each chat's email address
	// across restarts.
	StatePath string `yaml:"state_path" envconfig:"MEETING_STATE_PATH"`

	Google GoogleSettings `yaml:"google"`
}

// GoogleSettings points at the OAuth client secret and cached user token
// used for Calendar access.
type GoogleSettings struct {
	CredentialsFile string `yaml:"credentials_file" envconfig:"GOOGLE_CREDENTIALS_FILE"`
	TokenFile       string `yaml:"token_file" envconfig:"GOOGLE_TOKEN_FILE"`
	CalendarID      string `yaml:"calendar_id" envconfig:"GOOGLE_CALENDAR_ID"`
	TimeZone        string `yaml:"time_zone" envconfig:"GOOGLE_TIME_ZONE"`
}

// Config is the full configuration for the meeting scheduler bot.
type Config struct {
	coreconfig.Core `yaml:",inline"`

	Meeting Settings `yaml:"meeting"`
}

// CoreConfig exposes the embedded core block for the shared runner.
func (c *Config) CoreConfig() *coreconfig.Core { return &c.Core }

// LoadConfig reads and validates meeting scheduler configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8001
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, fmt.Errorf("openai.api_key is required")
	}
	if strings.TrimSpace(cfg.Meeting.Trigger) == "" {
		cfg.Meeting.Trigger = "!schedule"
	}
	if strings.TrimSpace(cfg.Meeting.Google.CredentialsFile) == "" {
		cfg.Meeting.Google.CredentialsFile = "credentials.json"
	}
	if strings.TrimSpace(cfg.Meeting.Google.TokenFile) == "" {
		cfg.Meeting.Google.TokenFile = "token.json"
	}
	if _, err := os.Stat(cfg.Meeting.Google.CredentialsFile); err != nil {
		return nil, fmt.Errorf("google credentials file not found: %s", cfg.Meeting.Google.CredentialsFile)
	}
	if strings.TrimSpace(cfg.Meeting.StatePath) == "" {
		cfg.Meeting.StatePath = "meeting_bot_state.json"
	}
	return cfg, nil
}

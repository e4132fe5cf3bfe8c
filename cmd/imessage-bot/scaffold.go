package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// scaffold writes a new bot skeleton and returns the created directory.
// It refuses to touch a directory that already exists.
func scaffold(name, parent string, port int) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("invalid bot name %q: use lowercase letters, digits, and dashes", name)
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("port %d out of range", port)
	}

	dir := name
	if parent != "" {
		dir = filepath.Join(parent, name)
	}
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("directory %s already exists", dir)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	files := map[string]string{
		"main.go":      renderMain(name),
		"config.yaml":  renderConfig(name, port),
		".env.example": renderEnvExample(port),
		"README.md":    renderReadme(name),
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", file, err)
		}
	}
	return dir, nil
}

func renderMain(name string) string {
	return fmt.Sprintf(`package main

import (
	"log"

	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corebot "github.com/shrey150/imessage-bots/core/bot"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
)

type config struct {
	coreconfig.Core `+"`yaml:\",inline\"`"+`
}

func (c *config) CoreConfig() *coreconfig.Core { return &c.Core }

type app struct {
	cfg *config
}

func (a *app) BuildBot() (*corebot.Bot, error) {
	b, err := corebot.New(corebot.Options{Name: %q, Config: &a.cfg.Core})
	if err != nil {
		return nil, err
	}

	b.Use(corebot.IgnoreOwn)

	b.OnMessage("hello", corebot.Command("!hello", func(m *corebot.Message) (string, error) {
		return "Hello " + m.Sender + "! 👋", nil
	}))
	b.OnMessage("ping", corebot.Command("!ping", func(m *corebot.Message) (string, error) {
		return "Pong! 🏓", nil
	}))

	return b, nil
}

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg := &config{}
			if err := coreconfig.Load(path, cfg); err != nil {
				return nil, err
			}
			if err := cfg.Normalize(); err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			c := cfg.(*config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: c.CoreConfig()}); err != nil {
				return nil, err
			}
			return &app{cfg: c}, nil
		},
	})
	if err != nil {
		log.Fatalf("%s: %%v", err)
	}
}
`, name, name)
}

func renderConfig(name string, port int) string {
	return fmt.Sprintf(`# %s configuration. Environment variables override these values.
bluebubbles:
  server_url: "http://localhost:1234"
  # password: set BLUEBUBBLES_PASSWORD in .env instead

http:
  host: "0.0.0.0"
  port: %d

logging:
  level: "info"
  format: "kv"
`, name, port)
}

func renderEnvExample(port int) string {
	return fmt.Sprintf(`# BlueBubbles relay
BLUEBUBBLES_SERVER_URL=http://localhost:1234
BLUEBUBBLES_PASSWORD=your_password_here

# Webhook server
PORT=%d

# OpenAI (optional)
OPENAI_API_KEY=
`, port)
}

func renderReadme(name string) string {
	return fmt.Sprintf(`# %s

An iMessage bot built on BlueBubbles.

## Setup

1. Copy the environment file and fill in your relay password:

   `+"```bash\n   cp .env.example .env\n   ```"+`

2. Point BlueBubbles at the bot: add a webhook for
   `+"`http://<this-host>:<port>/webhook`"+` with the "New Messages" event.

3. Run it:

   `+"```bash\n   go run .\n   ```"+`

## Commands

- `+"`!hello`"+` - say hello
- `+"`!ping`"+` - get a pong back

Handlers live in main.go; add more with bot.OnMessage and the matchers
in the core/bot package.
`, name)
}

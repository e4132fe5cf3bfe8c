package bootstrap

import (
	"fmt"

	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/logger"
	corestore "github.com/shrey150/imessage-bots/core/store"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Core
	// Store is nil for bots that keep no chat-state persistence.
	Store *corestore.Config

	LoggerInit func(*coreconfig.LoggingConfig) error
	OpenStore  func(corestore.Config) (corestore.Backend, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store corestore.Backend
}

// Run initializes the logger and, when configured, opens the chat-state
// store with migrations applied.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(&opts.Config.Logging); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if opts.Store == nil {
		return &Result{}, nil
	}

	open := opts.OpenStore
	if open == nil {
		open = corestore.Open
	}
	backend, err := open(*opts.Store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store initialization failed: %w", err)
	}

	return &Result{Store: backend}, nil
}

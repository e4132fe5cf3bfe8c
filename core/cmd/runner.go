package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	corebot "github.com/shrey150/imessage-bots/core/bot"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/logger"

	"log/slog"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Core
}

// BotApp builds the bot a main package wants to run.
type BotApp interface {
	BuildBot() (*corebot.Bot, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (BotApp, error)

	ShutdownLogger func() error
	RunBot         func(ctx context.Context, b *corebot.Bot) error
}

// Run loads configuration, bootstraps the app, and serves the bot until a
// shutdown signal arrives.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()
	b, err := application.BuildBot()
	if err != nil {
		return fmt.Errorf("cmd: bot build failed: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info(logger.Background(), "app", "shutdown",
			slog.String("status", "ok"),
			slog.String("bot", b.Name()),
		)
	}()

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.String("bot", b.Name()),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	run := opts.RunBot
	if run == nil {
		run = func(ctx context.Context, b *corebot.Bot) error {
			return b.Run(ctx)
		}
	}

	return run(ctx, b)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shrey150/imessage-bots/core/bluebubbles"
	coreconfig "github.com/shrey150/imessage-bots/core/config"
	"github.com/shrey150/imessage-bots/core/logger"
	"github.com/shrey150/imessage-bots/core/sender"
	"log/slog"
)

const shutdownGrace = 10 * time.Second

// Options configures a new bot. Config is required; Relay and Dispatcher
// are built from it when left nil.
type Options struct {
	Name   string
	Config *coreconfig.Core

	// MaxReplyParts caps how many bubbles one handler reply is split
	// into. Zero means replies always go out as a single message.
	MaxReplyParts int

	Relay             *bluebubbles.Client
	Dispatcher        *sender.Dispatcher
	DispatcherOptions sender.Options
}

type namedHandler struct {
	name string
	fn   Handler
}

// Bot receives BlueBubbles webhooks over HTTP, routes each message through
// its middleware and handler chain, and sends replies through a dispatcher.
type Bot struct {
	name          string
	cfg           *coreconfig.Core
	relay         *bluebubbles.Client
	dispatcher    *sender.Dispatcher
	maxReplyParts int

	mu          sync.Mutex
	handlers    []namedHandler
	middlewares []Middleware

	mux  *http.ServeMux
	cron *cron.Cron

	received atomic.Uint64
	replied  atomic.Uint64
}

// New builds a bot, wires the default middlewares, and registers the
// health and webhook routes.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: nil config provided")
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "bot"
	}

	relay := opts.Relay
	if relay == nil {
		var err error
		relay, err = bluebubbles.NewFromConfig(opts.Config.BlueBubbles)
		if err != nil {
			return nil, fmt.Errorf("bot: %w", err)
		}
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = sender.NewDispatcher(opts.DispatcherOptions)
	}

	parts := opts.MaxReplyParts
	if parts < 1 {
		parts = 1
	}

	b := &Bot{
		name:          name,
		cfg:           opts.Config,
		relay:         relay,
		dispatcher:    dispatcher,
		maxReplyParts: parts,
		mux:           http.NewServeMux(),
	}

	b.middlewares = append(b.middlewares, Recover, RequestLog)
	if interval := opts.Config.RateLimit.IntervalMS; interval > 0 {
		b.middlewares = append(b.middlewares, Throttle(
			time.Duration(interval)*time.Millisecond,
			opts.Config.RateLimit.ExcludeFromMe,
		))
	}

	b.mux.HandleFunc("GET /{$}", b.handleHealth)
	b.mux.HandleFunc("POST /webhook", b.handleWebhook)

	return b, nil
}

// Name returns the bot's display name as reported by the health route.
func (b *Bot) Name() string { return b.name }

// Relay exposes the BlueBubbles client for handlers that fetch history or
// participants directly.
func (b *Bot) Relay() *bluebubbles.Client { return b.relay }

// Config returns the core configuration the bot was built with.
func (b *Bot) Config() *coreconfig.Core { return b.cfg }

// Handler returns the bot's HTTP handler, for tests and custom servers.
func (b *Bot) Handler() http.Handler { return b.mux }

// OnMessage registers a handler. Handlers run in registration order; the
// first one that does not pass ends the chain.
func (b *Bot) OnMessage(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: normalizeHandlerName(name), fn: h})
}

// Use appends a middleware after the defaults. Middlewares wrap the handler
// chain outermost-first in registration order.
func (b *Bot) Use(mw Middleware) {
	if mw == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// HandleFunc registers an extra HTTP route on the bot's server, for
// bot-specific endpoints like stats or manual triggers.
func (b *Bot) HandleFunc(pattern string, fn http.HandlerFunc) {
	b.mux.HandleFunc(pattern, fn)
}

// Schedule registers fn to run on a standard five-field cron spec. The
// scheduler starts with Run and stops with it.
func (b *Bot) Schedule(spec, name string, fn func(context.Context)) error {
	if fn == nil {
		return fmt.Errorf("bot: nil scheduled func %q", name)
	}
	if b.cron == nil {
		b.cron = cron.New()
	}
	job := normalizeHandlerName(name)
	_, err := b.cron.AddFunc(spec, func() {
		ctx := logger.WithHandler(logger.Background(), job)
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "bot", "cron.panic",
					slog.String("status", "error"),
					slog.String("job", job),
					slog.Any("err", r),
				)
			}
		}()
		start := time.Now()
		fn(ctx)
		logger.Debug(ctx, "bot", "cron.run",
			slog.String("status", "ok"),
			slog.String("job", job),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)
	})
	if err != nil {
		return fmt.Errorf("bot: invalid cron spec %q for %s: %w", spec, job, err)
	}
	return nil
}

// SendToChat queues text for delivery to a chat. Delivery happens on the
// dispatcher's workers; a full queue returns sender.ErrQueueFull.
func (b *Bot) SendToChat(ctx context.Context, chatGUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chatGUID == "" {
		return fmt.Errorf("bot: empty chat guid")
	}
	relay := b.relay
	if err := b.dispatcher.Enqueue(ctx, "send_text", "message/text", func() error {
		return relay.SendText(ctx, chatGUID, text)
	}); err != nil {
		return err
	}
	b.replied.Add(1)
	return nil
}

// process runs one message through the middleware and handler chain and
// sends the winning reply. It runs on its own goroutine per message.
func (b *Bot) process(m *Message) {
	b.received.Add(1)

	b.mu.Lock()
	middlewares := b.middlewares
	b.mu.Unlock()

	chain := Handler(b.runHandlers)
	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i](chain)
	}

	reply, err := chain(m)
	if err != nil && !errors.Is(err, ErrPass) {
		logger.Error(m.Context(), "bot", "process.fail",
			slog.String("status", "error"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	if reply == "" {
		return
	}
	if err := m.ReplyParts(reply, m.replyParts()); err != nil {
		logger.Error(m.Context(), "bot", "reply.enqueue.fail",
			slog.String("status", "error"),
			slog.String("chat_guid", logger.ShortGUID(m.ChatGUID)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// runHandlers walks the registered handlers in order. ErrPass moves on,
// other errors are logged and the chain keeps going, and the first handler
// that engages ends the walk.
func (b *Bot) runHandlers(m *Message) (string, error) {
	b.mu.Lock()
	handlers := b.handlers
	b.mu.Unlock()

	start := time.Now()
	for _, nh := range handlers {
		fn := nh.fn
		reply, err := handleWithSummary(m, nh.name, time.Now(), func() (string, error) {
			return fn(m)
		})
		if errors.Is(err, ErrPass) {
			continue
		}
		if err != nil {
			continue
		}
		return reply, nil
	}
	logUnmatched(m.Context(), start)
	return "", nil
}

// Run serves HTTP until ctx is done, then shuts down the server, the cron
// scheduler, and the dispatcher, in that order.
func (b *Bot) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	addr := b.cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if b.cron != nil {
		b.cron.Start()
	}

	logger.Info(ctx, "bot", "http.listen",
		slog.String("status", "ok"),
		slog.String("bot", b.name),
		slog.String("addr", addr),
		slog.Int("handlers", len(b.handlers)),
	)

	serveErr := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := srv.Shutdown(shutCtx); err != nil {
			_ = srv.Close()
		}
		cancel()
		<-serveErr
		runErr = ctx.Err()
	case err := <-serveErr:
		runErr = err
	}

	if b.cron != nil {
		cronCtx := b.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(shutdownGrace):
			logger.Warn(context.Background(), "bot", "cron.stop.timeout",
				slog.String("status", "error"),
				slog.String("bot", b.name),
			)
		}
	}

	b.dispatcher.Close()

	logger.Info(context.Background(), "bot", "bot.stopped",
		slog.String("status", "ok"),
		slog.String("bot", b.name),
		slog.Uint64("received", b.received.Load()),
		slog.Uint64("replied", b.replied.Load()),
		slog.Uint64("send_errors", b.dispatcher.ErrorCount()),
	)

	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

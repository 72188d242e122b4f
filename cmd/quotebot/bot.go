package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gillepool/quotebot/internal/adapter"
	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/config"
	"github.com/gillepool/quotebot/internal/handler"
	"github.com/gillepool/quotebot/internal/quotes"
	"github.com/gillepool/quotebot/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Bot struct {
	Name    string
	Adapter adapter.Adapter
	Brain   *brain.Brain
	Source  quotes.Source
	Logger  *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Bot, error) {
	var (
		a   adapter.Adapter
		err error
	)
	switch cfg.Adapter {
	case config.AdapterCLI:
		a = adapter.NewCLIAdapter(cfg.BotName)
	default:
		a, err = adapter.NewDiscordAdapter(cfg.DiscordToken, log.Named("Discord"))
		if err != nil {
			return nil, fmt.Errorf("failed to create discord session: %w", err)
		}
	}

	b := brain.NewBrain(log.Named("Brain"))
	b.SetHandlerTimeout(cfg.HandlerTimeout)

	client := &http.Client{Timeout: cfg.QuotesTimeout}

	return &Bot{
		Name:    cfg.BotName,
		Adapter: a,
		Brain:   b,
		Source:  quotes.NewHTTPSource(cfg.QuotesURL, client, cfg.QuotesTimeout, log.Named("Quotes")),
		Logger:  log,
	}, nil
}

// Run connects the bot and handles messages until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	ready, err := b.Adapter.Open()
	if err != nil {
		if closeErr := b.Adapter.Close(); closeErr != nil {
			b.Logger.Debug("Error while closing adapter after failed open", zap.Error(closeErr))
		}
		return err
	}

	h := handler.New(ready, b.Source, b.Logger.Named("Handler"))
	h.Register(b.Brain, b.Adapter)
	if len(b.Brain.RegistrationErrs) > 0 {
		_ = b.Adapter.Close()
		return fmt.Errorf("invalid event handlers: %w", errors.Join(b.Brain.RegistrationErrs...))
	}

	b.Adapter.RegisterAt(b.Brain)

	done := make(chan struct{})
	go func() {
		b.Brain.HandleEvents()
		close(done)
	}()

	b.Logger.Info("Initialized bot", zap.String("name", b.Name))
	<-ctx.Done()
	b.Logger.Info("Shutting down", zap.String("name", b.Name))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Pending replies still need the adapter, so it is closed last.
	shutdownErr := b.Brain.Shutdown(shutdownCtx)
	if shutdownErr == nil {
		<-done
	}
	if err := b.Adapter.Close(); err != nil {
		b.Logger.Warn("Error while closing adapter", zap.Error(err))
	}
	if shutdownErr != nil {
		return fmt.Errorf("failed to process pending events: %w", shutdownErr)
	}

	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	bot, err := New(cfg, log)
	if err != nil {
		log.Error("Failed to initialize bot", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil {
		var authErr *adapter.AuthError
		if errors.As(err, &authErr) {
			log.Error("Login failed", zap.Error(err), zap.String("remediation", authErr.Remediation()))
			return 1
		}

		log.Error("An unexpected error occurred", zap.Error(err))
		return 1
	}

	return 0
}

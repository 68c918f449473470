// Gatekeeper - Telegram group verification bot
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/gatekeeper/internal/api"
	"github.com/ashureev/gatekeeper/internal/bot"
	"github.com/ashureev/gatekeeper/internal/config"
	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/events"
	"github.com/ashureev/gatekeeper/internal/fastout"
	"github.com/ashureev/gatekeeper/internal/gateway"
	"github.com/ashureev/gatekeeper/internal/retention"
	"github.com/ashureev/gatekeeper/internal/store"
	"github.com/ashureev/gatekeeper/internal/verification"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	updateQueueSize = 256
	updateWorkers   = 4
	hubBuffer       = 64
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot stopped successfully")
}

//nolint:gocognit // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting bot",
		"port", cfg.Port,
		"mode", cfg.UpdateMode,
		"htest", cfg.HTestEnabled,
		"fastout", cfg.FastOutEnabled)

	tg, err := gateway.NewTelegram(cfg.BotToken, logger)
	if err != nil {
		return fmt.Errorf("initialize telegram: %w", err)
	}
	slog.Info("Authorized on Telegram", "bot", tg.SelfName(), "bot_id", tg.SelfID())

	hub := events.NewHub(hubBuffer, logger)
	publishers := domain.Publishers{hub}

	// The journal is optional; interface values stay nil when it is off.
	var (
		stats   bot.StatsSource
		pruner  retention.JournalPruner
		pinger  api.Pinger
		writer  *store.Writer
		journal *store.SQLiteStore
	)
	if cfg.Journal.Enabled {
		journal, err = store.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("initialize journal: %w", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				slog.Error("Failed to close journal", "error", closeErr)
			}
		}()
		if err := journal.Ping(ctx); err != nil {
			return fmt.Errorf("journal health check: %w", err)
		}
		slog.Info("Journal connected", "path", cfg.Journal.DBPath)

		writer = store.NewWriter(journal, cfg.Journal.QueueSize, logger)
		publishers = append(publishers, writer)
		stats, pruner, pinger = journal, journal, journal
	}

	mech := domain.NewMechanisms(cfg.HTestEnabled, cfg.FastOutEnabled)
	ledger := fastout.NewLedger()
	tracker := fastout.NewTracker(tg, ledger, nil, mech, cfg.MessageCleanup, logger, publishers)

	engine := verification.NewEngine(tg, verification.NewSessionStore(), mech, tg.SelfID(),
		verification.Config{
			Window:          cfg.VerificationTimeout,
			NoticeTTL:       cfg.NoticeTTL,
			RefreshInterval: cfg.CountdownInterval,
		},
		verification.WithLogger(logger),
		verification.WithPublisher(append(domain.Publishers{tracker}, publishers...)),
	)
	tracker.SetGate(engine)

	dispatcher := bot.NewDispatcher(tg, engine, tracker, mech, bot.Options{
		QueueSize: updateQueueSize,
		Workers:   updateWorkers,
		BotName:   tg.SelfName(),
		Settings: bot.Settings{
			Window:         cfg.VerificationTimeout,
			NoticeTTL:      cfg.NoticeTTL,
			TrackingWindow: cfg.MessageCleanup,
		},
		Stats:  stats,
		Logger: logger,
	})

	sweeper := retention.NewSweeper(ledger, pruner, retention.Config{
		Interval:         cfg.SweepInterval,
		LedgerWindow:     cfg.MessageCleanup,
		JournalRetention: cfg.Journal.Retention,
	}, logger)

	routes := api.RouterConfig{
		Health: api.NewHealthHandler(pinger, engine.Pending, tracker.Tracked, logger),
		Logger: logger,
	}
	if !cfg.IsPolling() {
		routes.WebhookPath = cfg.WebhookPath
		routes.WebhookSecret = cfg.WebhookSecret
		routes.Webhook = api.NewWebhookHandler(dispatcher, logger)
	}
	if cfg.EventsToken != "" {
		stream := events.NewWebSocketHandler(hub, cfg.EventsToken, logger)
		if journal != nil {
			stream.SetBacklog(journal)
		}
		routes.Events = stream
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(routes),
		ReadTimeout: 30 * time.Second,
		// WebSocket event streams are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// The writer outlives the errgroup so events from the final resolutions are flushed.
	writerDone := make(chan struct{})
	writerCtx, stopWriter := context.WithCancel(context.Background())
	if writer != nil {
		go func() {
			defer close(writerDone)
			_ = writer.Run(writerCtx)
		}()
	} else {
		close(writerDone)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.IsPolling() {
		g.Go(func() error {
			return tg.Poll(gctx, func(u tgbotapi.Update) {
				if !dispatcher.EnqueueWait(gctx, u) {
					slog.Debug("Update discarded during shutdown", "update_id", u.UpdateID)
				}
			})
		})
	} else {
		g.Go(func() error {
			if err := tg.SetWebhook(cfg.WebhookEndpoint(), cfg.WebhookSecret); err != nil {
				return err
			}
			<-gctx.Done()
			if err := tg.DeleteWebhook(); err != nil {
				slog.Warn("Failed to delete webhook on shutdown", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()

	engine.Close()
	stopWriter()
	<-writerDone
	if writer != nil && writer.Dropped() > 0 {
		slog.Warn("Journal dropped events", "count", writer.Dropped())
	}
	return err
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tmps-bot/internal/auth"
	"tmps-bot/internal/config"
	"tmps-bot/internal/database"
	"tmps-bot/internal/dispatch"
	"tmps-bot/internal/handlers"
	"tmps-bot/internal/locales"
	"tmps-bot/internal/mediagroups"
	"tmps-bot/internal/postlock"
	"tmps-bot/internal/scheduler"

	appbot "tmps-bot/bot"

	"github.com/benbjohnson/clock"
	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	locales.Init()

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Connect to MongoDB
	client, db, err := database.ConnectDB(cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()
	// Create repository instances
	userRepo := database.NewMongoUserRepository(db)
	postRepo := database.NewMongoPostRepository(db)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create the raw telego bot instance
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	updatesChan, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	channelChecker, err := auth.NewChannelChecker(ctx, bot)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create channel checker: %v", err)
	}

	aggregator := mediagroups.New(postRepo)
	postLocks := postlock.NewRegistry()
	messageHandler := handlers.NewMessageHandler(userRepo, postRepo, aggregator, postLocks, channelChecker)

	appBot, err := appbot.New(appbot.Deps{
		Bot:         bot,
		UpdatesChan: updatesChan,
		Handler:     messageHandler,
		Debug:       cfg.Debug,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	if err := appBot.SetupCommands(ctx); err != nil {
		log.Printf("Failed to publish command menu: %v", err)
		sentry.CaptureException(err)
	}

	// Start the due-post sweep
	dispatcher := dispatch.New(bot)
	sweep := scheduler.New(postRepo, userRepo, dispatcher, postLocks, cfg.PostingInterval, clock.New())
	go sweep.Run(ctx)

	// Start the bot wrapper's processing loop in a separate goroutine
	go appBot.Start(ctx)

	// Wait for context cancellation (e.g., SIGINT, SIGTERM)
	<-ctx.Done()

	log.Println("Shutting down bot...")
	log.Println("Bot shutdown complete.")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"partyline/domain/event"
	"partyline/infrastructure/party"
	"partyline/infrastructure/xmpp"
	"partyline/moderation"
	"partyline/repositories"
	"partyline/runtime"
	"partyline/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the client lifecycle, and centralizes
// error reporting. This pattern is preferred over calling os.Exit or panic
// directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the stream and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Optional chat moderation
	var moderator *moderation.Moderator
	if config.ModerationEnabled {
		moderator, err = moderation.NewDefaultModerator(config.ModerationCharReplacement)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
	}

	// 4. Transport, party service, and engine
	transport := xmpp.NewTransport(log)
	parties := party.NewClient(log, config.PartyServiceURL, config.AppID, func() string {
		return config.AuthToken
	})

	engine := runtime.NewEngine(log, transport, parties, runtime.Options{
		AccountID:    config.AccountID,
		DisplayName:  config.DisplayName,
		AppID:        config.AppID,
		Host:         config.StreamHost,
		PartyBuildID: config.PartyBuildID,
		AutoConfirm:  config.AutoConfirm,
		KeepAlive:    config.KeepAlive,
		Moderator:    moderator,
		Telemetry:    config.TelemetryInterval,
	})

	// 5. Message archive wired onto the bus
	archive := repositories.NewArchiveRepository(db, log, config.LimitMessages)
	archiveSink := sink.NewArchiveSink(archive, log)
	engine.Bus().Attach(event.TopicFriendMessage, archiveSink)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Start the Engine
	engine.Start(ctx)
	log.Info("Connecting", "account", config.AccountID, "host", config.StreamHost, "at", time.Now().UTC())
	if err = engine.Connect(ctx, config.AuthToken); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	log.Info("Session started", "resource", engine.Resource())

	// 8. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = engine.Disconnect(shutdownCtx); err != nil {
		log.Warn("Disconnect failed", "error", err)
	}
	engine.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

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
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"room-relay/domain"
	"room-relay/domain/event"
	"room-relay/infrastructure/httpapi"
	"room-relay/infrastructure/ws"
	"room-relay/internal"
	"room-relay/observability"
	"room-relay/repositories"
	"room-relay/runtime"
	"room-relay/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
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

	// 3. Core components
	metrics := &observability.RelayMetrics{}
	outbound := make(chan event.Command, config.BufferSize)
	notifications := make(chan domain.PushNotification, config.PushBufferSize)

	store := repositories.NewMessageRepository(db, log, config.RetentionWindow, outbound, metrics)
	subscriptions := repositories.NewSubscriptionRepository(db, log)
	registry := runtime.NewConnectionRegistry()
	dedup := runtime.NewDedupFilter(config.DedupWindow)
	lifecycle := runtime.NewRoomLifecycle(log, store, registry, outbound, metrics)
	handler := runtime.NewHandler(log, store, registry, dedup, lifecycle, outbound, metrics)
	gateway := ws.NewGateway(log, handler, config.SendBufferSize)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewOutboundWorker(log, gateway, outbound),
		workers.NewRetentionWorker(log, store, config.SweepInterval, config.RetentionWindow, outbound),
		workers.NewKeepAliveWorker(log, config.KeepAliveURL, config.KeepAliveInterval, metrics),
		workers.NewPushWorker(log, subscriptions, notifications,
			config.VapidSubscriber, config.VapidPublicKey, config.VapidPrivateKey, metrics),
	)
	go sup.Run(ctx)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, metrics, config.DebugPort)
		log.Info("Debug inspector enabled", "port", config.DebugPort)
	}

	// 6. HTTP & WebSocket server
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadBufferSize:        16 << 10,
	})
	gateway.Register(app)
	httpapi.NewServer(log, lifecycle, subscriptions, notifications).Register(app)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)

	// Use an error channel to capture Listen() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

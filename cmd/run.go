package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"betmates/config"
	"betmates/database"
	"betmates/events"
	"betmates/notifier"
	"betmates/repository"
	"betmates/service"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting betmates engine...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	log.Println("Initializing services...")
	resolutionService := service.NewResolutionService(uowFactory)
	log.Println("Services initialized successfully")

	// Connect the notification dispatcher
	log.Println("Connecting to NATS...")
	natsClient := notifier.NewNATSClient(cfg.NatsURL)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := natsClient.EnsureNotificationStream(); err != nil {
		return fmt.Errorf("failed to ensure notification stream: %w", err)
	}
	dispatcher := notifier.NewDispatcher(uowFactory, natsClient)
	dispatcher.Register(eventBus)
	log.Println("Notification dispatcher registered")

	// Start the expiry sweep worker
	stopSweep := startExpirySweep(ctx, resolutionService, cfg.ExpirySweepInterval)

	// Wait for context cancellation
	log.Printf("Engine is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down...")
	stopSweep()

	if err := natsClient.Close(); err != nil {
		log.Printf("Error closing NATS connection: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}

// startExpirySweep runs the deadline sweep on a ticker. Returns a cleanup
// function to stop the worker gracefully.
func startExpirySweep(ctx context.Context, resolutionService service.ResolutionService, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	stopChan := make(chan struct{})

	sweep := func() {
		if err := resolutionService.TransitionExpiredBets(context.Background()); err != nil {
			log.Printf("Error transitioning expired bets: %v", err)
		}
	}

	go func() {
		log.Println("Expiry sweep worker started")

		// Run immediately on startup
		sweep()

		for {
			select {
			case <-ctx.Done():
				log.Println("Expiry sweep worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Println("Expiry sweep worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stopChan)
	}
}

// The interleaver binary runs one article interleaving batch (typically from
// cron, once per day). Re-running it on the same day is a no-op for users
// already served, so a crashed run is simply started again.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/temcen/livelab/internal/app"
	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/database"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/internal/messaging"
	"github.com/temcen/livelab/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.SetupLogger(cfg)

	db, err := database.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	bus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize message bus")
	}
	defer bus.Close()

	store := ledger.New(db.PG, logger)
	metrics := services.NewMetrics()
	progress := services.NewProgressTracker(db.Redis, logger)
	interleaving := services.NewInterleavingService(cfg, logger, store, metrics, progress, bus)

	// Cancellation takes effect between pages, never mid-transaction.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := interleaving.RunDaily(ctx); err != nil {
		logger.WithError(err).Error("Interleaving batch failed")
		os.Exit(1)
	}
}

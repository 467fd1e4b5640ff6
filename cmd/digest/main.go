// The digest binary runs one digest dispatch batch (typically from cron,
// once per day). Users whose send failed stay eligible and are retried by
// the next run.
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
	"github.com/temcen/livelab/internal/mail"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := mail.NewRenderer()
	var sender mail.Sender
	if cfg.Mail.AccessKey != "" && cfg.Mail.SecretKey != "" {
		sender, err = mail.NewSESSender(ctx, cfg.Mail, renderer, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize SES sender")
		}
	} else {
		logger.Warn("No mail credentials configured, digests will only be logged")
		sender = mail.NewLogSender(logger, renderer)
	}

	store := ledger.New(db.PG, logger)
	metrics := services.NewMetrics()
	progress := services.NewProgressTracker(db.Redis, logger)
	digest := services.NewDigestService(cfg, logger, store, sender, metrics, progress, bus)

	if err := digest.RunDaily(ctx); err != nil {
		logger.WithError(err).Error("Digest batch failed")
		os.Exit(1)
	}
}

package services

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/database"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/internal/messaging"
)

// Services is the registry the HTTP server wires its handlers against. The
// batch binaries (interleaver, digest) assemble their own smaller sets.
type Services struct {
	Health       *HealthService
	RateLimit    *RateLimitService
	MessageBus   *messaging.MessageBus
	Metrics      *Metrics
	Progress     *ProgressTracker
	Ledger       *ledger.Store
	Ingestion    *IngestionService
	Interleaving *InterleavingService
	Feedback     *FeedbackService
	Evaluation   *EvaluationService
	Data         *DataService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	store := ledger.New(db.PG, logger)
	metrics := NewMetrics()
	progress := NewProgressTracker(db.Redis, logger)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Health:       NewHealthService(logger, db),
		RateLimit:    NewRateLimitService(cfg, logger, db.Redis),
		MessageBus:   messageBus,
		Metrics:      metrics,
		Progress:     progress,
		Ledger:       store,
		Ingestion:    NewIngestionService(cfg, logger, store, db.Redis, metrics),
		Interleaving: NewInterleavingService(cfg, logger, store, metrics, progress, messageBus),
		Feedback:     NewFeedbackService(logger, store, metrics, messageBus),
		Evaluation:   NewEvaluationService(cfg, logger, store),
		Data:         NewDataService(logger, store),
	}, nil
}

package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/services"
	"github.com/temcen/livelab/internal/validation"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Callback       *CallbackHandler
	Feedback       *FeedbackHandler
	Evaluation     *EvaluationHandler
	Data           *DataHandler
}

func New(cfg *config.Config, logger *logrus.Logger, svcs *services.Services) (*Handlers, error) {
	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		Health:         NewHealthHandler(logger, svcs.Health),
		Recommendation: NewRecommendationHandler(logger, svcs.Ingestion, schemas),
		Callback:       NewCallbackHandler(cfg, logger, svcs.Feedback),
		Feedback:       NewFeedbackHandler(logger, svcs.Feedback, svcs.Interleaving),
		Evaluation:     NewEvaluationHandler(logger, svcs.Evaluation),
		Data:           NewDataHandler(logger, svcs.Data),
	}, nil
}

package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/temcen/livelab/pkg/models"
)

// Interfaces consumed by the HTTP handlers. Satisfied by the concrete
// services below and mocked in handler tests.

// IngestionServiceInterface validates and stores recommendation pushes from
// external systems.
type IngestionServiceInterface interface {
	SubmitArticleRecommendations(ctx context.Context, systemID int64, req *models.ArticleRecommendationRequest) error
	SubmitTopicRecommendations(ctx context.Context, systemID int64, req *models.TopicRecommendationRequest) error
}

// FeedbackServiceInterface maps inbound interaction events onto impression rows.
type FeedbackServiceInterface interface {
	ClickWeb(ctx context.Context, userID int64, articleID string) error
	SeenWeb(ctx context.Context, userID int64, articleIDs []string) error
	SaveWeb(ctx context.Context, userID int64, articleID string, saved bool) error
	ClickEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error
	SaveEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error
	Unsubscribe(ctx context.Context, trace uuid.UUID) error
	SetTopicState(ctx context.Context, userID int64, topic string, state models.TopicState) error
}

// EvaluationServiceInterface aggregates interaction flags into per-system
// reward series.
type EvaluationServiceInterface interface {
	NormalizedRewards(ctx context.Context, q RewardWindow) (*models.RewardSeries, error)
	Outcomes(ctx context.Context, q RewardWindow) (*models.OutcomeSeries, error)
}

// TopicSuggestionServiceInterface is the on-demand topic path of the
// interleaving scheduler.
type TopicSuggestionServiceInterface interface {
	SuggestTopics(ctx context.Context, userID int64) ([]models.SuggestedTopic, error)
}

// DataServiceInterface serves ledger reads to external recommender systems.
type DataServiceInterface interface {
	Users(ctx context.Context, limit, offset int) (*models.UserList, error)
	UserInfo(ctx context.Context, ids []int64) (map[int64]models.UserInfo, error)
	EligibleArticles(ctx context.Context) ([]string, error)
	ArticleData(ctx context.Context, ids []string) (map[string]models.Article, error)
	SystemFeedback(ctx context.Context, systemID int64, userIDs []int64) ([]models.Impression, error)
}
